package derive

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

type ataKey struct {
	Wallet solana.PublicKey
	Mint   solana.PublicKey
}

var (
	ataCache   = make(map[ataKey]solana.PublicKey)
	ataCacheMu sync.RWMutex
)

// AssociatedTokenAddress returns the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	key := ataKey{Wallet: owner, Mint: mint}

	ataCacheMu.RLock()
	if cached, ok := ataCache[key]; ok {
		ataCacheMu.RUnlock()
		return cached, nil
	}
	ataCacheMu.RUnlock()

	ata, _, err := Find(
		[][]byte{
			owner[:],
			common.TokenProgramID[:],
			mint[:],
		},
		common.ATAProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, err
	}

	ataCacheMu.Lock()
	ataCache[key] = ata
	ataCacheMu.Unlock()

	return ata, nil
}

// CreateATAInstruction builds the idempotent create instruction, so an
// account created concurrently by another client does not fail the
// transaction.
func CreateATAInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return &createATAInstruction{
		payer: payer,
		ata:   ata,
		owner: owner,
		mint:  mint,
	}, ata, nil
}

type createATAInstruction struct {
	payer solana.PublicKey
	ata   solana.PublicKey
	owner solana.PublicKey
	mint  solana.PublicKey
}

func (i *createATAInstruction) ProgramID() solana.PublicKey {
	return common.ATAProgramID
}

func (i *createATAInstruction) Accounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		{PublicKey: i.payer, IsSigner: true, IsWritable: true},
		{PublicKey: i.ata, IsSigner: false, IsWritable: true},
		{PublicKey: i.owner, IsSigner: false, IsWritable: false},
		{PublicKey: i.mint, IsSigner: false, IsWritable: false},
		{PublicKey: common.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: common.TokenProgramID, IsSigner: false, IsWritable: false},
	}
}

// Data is the CreateIdempotent discriminator of the associated token program.
func (i *createATAInstruction) Data() ([]byte, error) {
	return []byte{1}, nil
}
