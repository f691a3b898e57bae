// Package blockchaintest provides an in-memory ledger for tests.
package blockchaintest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var ErrUnavailable = errors.New("ledger unavailable")

type Ledger struct {
	mu sync.Mutex

	Accounts map[solana.PublicKey]*rpc.Account
	// Fail makes every account read return ErrUnavailable for these addresses.
	Fail map[solana.PublicKey]bool

	Slot        uint64
	BlockHeight uint64
	Blockhash   solana.Hash

	Sent     []*solana.Transaction
	SendErr  []error
	Statuses map[solana.Signature]*rpc.SignatureStatusesResult

	Signatures   map[solana.PublicKey][]*rpc.TransactionSignature
	Transactions map[solana.Signature]*rpc.GetTransactionResult

	AccountReads int
	// OnSend runs after a transaction is recorded; tests use it to make
	// created accounts appear.
	OnSend func(tx *solana.Transaction)
}

func New() *Ledger {
	return &Ledger{
		Accounts:     make(map[solana.PublicKey]*rpc.Account),
		Fail:         make(map[solana.PublicKey]bool),
		Statuses:     make(map[solana.Signature]*rpc.SignatureStatusesResult),
		Signatures:   make(map[solana.PublicKey][]*rpc.TransactionSignature),
		Transactions: make(map[solana.Signature]*rpc.GetTransactionResult),
		Slot:         1000,
		BlockHeight:  500,
		Blockhash:    solana.Hash{1, 2, 3},
	}
}

func (l *Ledger) Put(address, owner solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Accounts[address] = &rpc.Account{
		Lamports: 1_000_000,
		Owner:    owner,
		Data:     rpc.DataBytesOrJSONFromBytes(data),
	}
}

func (l *Ledger) Delete(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.Accounts, address)
}

func (l *Ledger) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Sent)
}

func (l *Ledger) GetAccountInfoWithOpts(_ context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.AccountReads++
	if l.Fail[account] {
		return nil, ErrUnavailable
	}
	acc, ok := l.Accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acc}, nil
}

func (l *Ledger) GetMultipleAccountsWithOpts(_ context.Context, accounts []solana.PublicKey, _ *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.AccountReads++
	out := &rpc.GetMultipleAccountsResult{Value: make([]*rpc.Account, len(accounts))}
	for i, a := range accounts {
		if l.Fail[a] {
			return nil, ErrUnavailable
		}
		out.Value[i] = l.Accounts[a]
	}
	return out, nil
}

func (l *Ledger) GetProgramAccountsWithOpts(_ context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out rpc.GetProgramAccountsResult
	for addr, acc := range l.Accounts {
		if acc.Owner != program {
			continue
		}
		if opts != nil && !matches(acc.Data.GetBinary(), opts.Filters) {
			continue
		}
		out = append(out, &rpc.KeyedAccount{Pubkey: addr, Account: acc})
	}
	return out, nil
}

func matches(data []byte, filters []rpc.RPCFilter) bool {
	for _, f := range filters {
		if f.DataSize != 0 && uint64(len(data)) != f.DataSize {
			return false
		}
		if f.Memcmp == nil {
			continue
		}
		end := int(f.Memcmp.Offset) + len(f.Memcmp.Bytes)
		if end > len(data) || !bytes.Equal(data[f.Memcmp.Offset:end], f.Memcmp.Bytes) {
			return false
		}
	}
	return true
}

func (l *Ledger) GetSlot(context.Context, rpc.CommitmentType) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Slot, nil
}

func (l *Ledger) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res := &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            l.Blockhash,
			LastValidBlockHeight: l.BlockHeight + 150,
		},
	}
	res.Context.Slot = l.Slot
	return res, nil
}

func (l *Ledger) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.BlockHeight, nil
}

// SendTransactionWithOpts records tx and pops the next scripted error, if any.
func (l *Ledger) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	l.mu.Lock()
	l.Sent = append(l.Sent, tx)
	var err error
	if len(l.SendErr) > 0 {
		err, l.SendErr = l.SendErr[0], l.SendErr[1:]
	}
	hook := l.OnSend
	l.mu.Unlock()

	if err != nil {
		return solana.Signature{}, err
	}
	if hook != nil {
		hook(tx)
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, nil
	}
	return tx.Signatures[0], nil
}

func (l *Ledger) SimulateTransactionWithOpts(context.Context, *solana.Transaction, *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	units := uint64(42_000)
	return &rpc.SimulateTransactionResponse{
		Value: &rpc.SimulateTransactionResult{
			Logs:          []string{"Program log: ok"},
			UnitsConsumed: &units,
		},
	}, nil
}

func (l *Ledger) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	for i, s := range sigs {
		out.Value[i] = l.Statuses[s]
	}
	return out, nil
}

// Confirm marks sig as confirmed at the current slot.
func (l *Ledger) Confirm(sig solana.Signature) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Statuses[sig] = &rpc.SignatureStatusesResult{
		Slot:               l.Slot,
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
	}
}

func (l *Ledger) SetBlockHeight(h uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.BlockHeight = h
}

func (l *Ledger) GetSignaturesForAddressWithOpts(_ context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sigs := l.Signatures[account]
	if opts != nil && opts.Limit != nil && len(sigs) > *opts.Limit {
		sigs = sigs[:*opts.Limit]
	}
	return sigs, nil
}

func (l *Ledger) GetTransaction(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.Transactions[sig]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return tx, nil
}
