package pipeline

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

// Compiled is a message bound to a blockhash together with its one canonical
// byte form.
type Compiled struct {
	Tx                   *solana.Transaction
	Message              []byte
	LastValidBlockHeight uint64
}

// Envelope is the wire form of the unsigned transaction: a zeroed signature
// slot for every required signer followed by the message.
func (c *Compiled) Envelope() (string, error) {
	raw, err := c.Tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeEnvelope(b64 string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
}

// verifyEnvelope accepts the co-signed transaction only when its message is
// byte-identical to what was sent and every signature other than the
// client's is present and valid.
func verifyEnvelope(sent *Compiled, cosigned *solana.Transaction, client solana.PublicKey) error {
	msg, err := cosigned.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrEnvelopeMismatch, err)
	}
	if !bytes.Equal(msg, sent.Message) {
		return fmt.Errorf("%w: message differs", common.ErrEnvelopeMismatch)
	}

	signers := cosigned.Message.Signers()
	if len(cosigned.Signatures) != len(signers) {
		return fmt.Errorf("%w: %d signatures for %d signers", common.ErrEnvelopeMismatch, len(cosigned.Signatures), len(signers))
	}
	for i, signer := range signers {
		if signer.Equals(client) {
			continue
		}
		sig := cosigned.Signatures[i]
		if !ed25519.Verify(ed25519.PublicKey(signer[:]), msg, sig[:]) {
			return fmt.Errorf("%w: bad signature for %s", common.ErrEnvelopeMismatch, signer)
		}
	}
	return nil
}

// signInto places key's signature over message into its signer slot.
func signInto(tx *solana.Transaction, message []byte, key solana.PrivateKey) (solana.Signature, error) {
	signers := tx.Message.Signers()
	if len(tx.Signatures) != len(signers) {
		sigs := make([]solana.Signature, len(signers))
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	pub := key.PublicKey()
	for i, signer := range signers {
		if !signer.Equals(pub) {
			continue
		}
		sig, err := key.Sign(message)
		if err != nil {
			return solana.Signature{}, err
		}
		tx.Signatures[i] = sig
		return sig, nil
	}
	return solana.Signature{}, fmt.Errorf("%s is not a signer of the message", pub)
}
