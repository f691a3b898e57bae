package ledger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 100

// Transfer is one observed movement from a vault to a beneficiary account.
type Transfer struct {
	Signature string           `json:"signature"`
	Slot      uint64           `json:"slot"`
	BlockTime int64            `json:"blockTime"`
	Amount    uint64           `json:"amount"`
	Mint      solana.PublicKey `json:"mint"`
	From      solana.PublicKey `json:"from"`
	To        solana.PublicKey `json:"to"`
	Failed    bool             `json:"failed"`
}

// TransferHistory scans the most recent transactions touching vault and keeps
// those where the vault balance fell while the beneficiary balance rose.
// Results are newest first. Transactions that cannot be fetched are skipped.
func (r *Reader) TransferHistory(ctx context.Context, vault, beneficiary solana.PublicKey, limit int) ([]Transfer, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	sigs, err := r.client.GetSignaturesForAddressWithOpts(ctx, vault, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: r.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("signatures for %s: %w", vault, err)
	}

	version := uint64(0)
	var out []Transfer
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		tx, err := r.client.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     r.commitment,
			MaxSupportedTransactionVersion: &version,
		})
		if err != nil {
			log.Debug().Err(err).Str("signature", sig.Signature.String()).Msg("[LedgerReader] skipping transaction")
			continue
		}
		t, ok := transferIn(tx, vault, beneficiary)
		if !ok {
			continue
		}
		t.Signature = sig.Signature.String()
		t.Slot = sig.Slot
		if sig.BlockTime != nil {
			t.BlockTime = int64(*sig.BlockTime)
		}
		out = append(out, t)
	}

	slices.SortStableFunc(out, func(a, b Transfer) int {
		return cmp.Compare(b.BlockTime, a.BlockTime)
	})
	return out, nil
}

func transferIn(tx *rpc.GetTransactionResult, vault, beneficiary solana.PublicKey) (Transfer, bool) {
	if tx == nil || tx.Meta == nil || tx.Transaction == nil {
		return Transfer{}, false
	}
	parsed, err := tx.Transaction.GetTransaction()
	if err != nil {
		return Transfer{}, false
	}

	// v0 messages reference table-loaded keys after the static ones
	keys := append(solana.PublicKeySlice{}, parsed.Message.AccountKeys...)
	keys = append(keys, tx.Meta.LoadedAddresses.Writable...)
	keys = append(keys, tx.Meta.LoadedAddresses.ReadOnly...)

	find := func(balances []rpc.TokenBalance, who solana.PublicKey) (uint64, solana.PublicKey, bool) {
		for _, b := range balances {
			if int(b.AccountIndex) >= len(keys) || keys[b.AccountIndex] != who {
				continue
			}
			if b.UiTokenAmount == nil {
				return 0, b.Mint, true
			}
			amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
			if err != nil {
				return 0, b.Mint, false
			}
			return amount, b.Mint, true
		}
		return 0, solana.PublicKey{}, false
	}

	vaultPre, _, okPre := find(tx.Meta.PreTokenBalances, vault)
	vaultPost, mint, okPost := find(tx.Meta.PostTokenBalances, vault)
	if !okPre || !okPost || vaultPost >= vaultPre {
		return Transfer{}, false
	}
	// an absent beneficiary balance counts as zero
	benPre, _, _ := find(tx.Meta.PreTokenBalances, beneficiary)
	benPost, _, _ := find(tx.Meta.PostTokenBalances, beneficiary)
	if benPost <= benPre {
		return Transfer{}, false
	}

	return Transfer{
		Amount: benPost - benPre,
		Mint:   mint,
		From:   vault,
		To:     beneficiary,
		Failed: tx.Meta.Err != nil,
	}, true
}
