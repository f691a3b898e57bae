// Package ledger reads and decodes program-owned records from the ledger.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
	"github.com/hxuan190/ledger-orchestrator/internal/units"
)

const decimalsCacheSize = 256

// Programs are the program ids the reader decodes records for.
type Programs struct {
	Crowdfunding solana.PublicKey
	NFTMining    solana.PublicKey
	Staking      solana.PublicKey
	Vesting      solana.PublicKey
}

type Existence int

const (
	Indeterminate Existence = iota
	Exists
	Absent
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case Absent:
		return "absent"
	}
	return "indeterminate"
}

type Reader struct {
	client     blockchain.LedgerRPC
	programs   Programs
	commitment rpc.CommitmentType
	decimals   *lru.Cache[solana.PublicKey, uint8]
}

func NewReader(client blockchain.LedgerRPC, programs Programs) *Reader {
	cache, _ := lru.New[solana.PublicKey, uint8](decimalsCacheSize)
	return &Reader{
		client:     client,
		programs:   programs,
		commitment: rpc.CommitmentConfirmed,
		decimals:   cache,
	}
}

func (r *Reader) Programs() Programs {
	return r.programs
}

// account fetches raw account data. A missing account or one without data
// is reported as common.ErrNotFound.
func (r *Reader) account(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	res, err := r.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: r.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, common.NewOperationError("fetch account", address, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account %s: %w", address, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil || len(res.Value.Data.GetBinary()) == 0 {
		return nil, common.NewOperationError("fetch account", address, common.ErrNotFound)
	}
	return res.Value, nil
}

// decodeRecord checks the account discriminator and Borsh-decodes the rest.
func decodeRecord[T any](data []byte, kind domain.RecordKind) (*T, error) {
	disc := kind.Discriminator()
	if len(data) < len(disc) || !bytes.Equal(data[:len(disc)], disc[:]) {
		return nil, fmt.Errorf("%s: %w", kind, common.ErrNotFound)
	}
	var out T
	if err := bin.NewBorshDecoder(data[len(disc):]).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return &out, nil
}

func fetchRecord[T any](ctx context.Context, r *Reader, address solana.PublicKey, kind domain.RecordKind) (*T, error) {
	acc, err := r.account(ctx, address)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord[T](acc.Data.GetBinary(), kind)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewOperationError("decode "+string(kind), address, common.ErrNotFound)
	}
	return rec, err
}

// listRecords returns every account of kind owned by program, optionally
// narrowed by extra memcmp filters.
func listRecords[T any](ctx context.Context, r *Reader, program solana.PublicKey, kind domain.RecordKind, filters ...rpc.RPCFilter) ([]domain.Keyed[T], error) {
	disc := kind.Discriminator()
	all := append([]rpc.RPCFilter{{
		Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(disc[:])},
	}}, filters...)

	res, err := r.client.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: r.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    all,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	out := make([]domain.Keyed[T], 0, len(res))
	for _, item := range res {
		if item == nil || item.Account == nil || item.Account.Data == nil {
			continue
		}
		rec, err := decodeRecord[T](item.Account.Data.GetBinary(), kind)
		if err != nil {
			continue
		}
		out = append(out, domain.Keyed[T]{Address: item.Pubkey, Record: *rec})
	}
	return out, nil
}

func memcmp(offset uint64, key solana.PublicKey) rpc.RPCFilter {
	return rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: offset, Bytes: solana.Base58(key.Bytes())}}
}

// Exists reports whether address holds an account. Network failures yield
// Indeterminate together with an error wrapping common.ErrIndeterminate.
func (r *Reader) Exists(ctx context.Context, address solana.PublicKey) (Existence, error) {
	_, err := r.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: r.commitment,
		Encoding:   solana.EncodingBase64,
	})
	switch {
	case err == nil:
		metrics.RecordExistenceCheck(Exists.String())
		return Exists, nil
	case errors.Is(err, rpc.ErrNotFound):
		metrics.RecordExistenceCheck(Absent.String())
		return Absent, nil
	}
	metrics.RecordExistenceCheck(Indeterminate.String())
	return Indeterminate, common.NewOperationError("existence check", address, fmt.Errorf("%w: %v", common.ErrIndeterminate, err))
}

// ExistsMany checks several addresses in one round trip. Each address gets
// its own verdict; a failed round trip makes every verdict Indeterminate.
func (r *Reader) ExistsMany(ctx context.Context, addresses []solana.PublicKey) ([]Existence, error) {
	out := make([]Existence, len(addresses))
	if len(addresses) == 0 {
		return out, nil
	}
	res, err := r.client.GetMultipleAccountsWithOpts(ctx, addresses, &rpc.GetMultipleAccountsOpts{
		Commitment: r.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil || res == nil || len(res.Value) != len(addresses) {
		if err == nil {
			err = errors.New("short response")
		}
		for range addresses {
			metrics.RecordExistenceCheck(Indeterminate.String())
		}
		return out, fmt.Errorf("existence check: %w: %v", common.ErrIndeterminate, err)
	}
	for i, acc := range res.Value {
		if acc == nil {
			out[i] = Absent
		} else {
			out[i] = Exists
		}
		metrics.RecordExistenceCheck(out[i].String())
	}
	return out, nil
}

// MintDecimals is cached for the process lifetime; decimals never change.
func (r *Reader) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if d, ok := r.decimals.Get(mint); ok {
		return d, nil
	}
	acc, err := r.account(ctx, mint)
	if err != nil {
		return 0, err
	}
	var m token.Mint
	if err := bin.NewBinDecoder(acc.Data.GetBinary()).Decode(&m); err != nil {
		return 0, fmt.Errorf("decode mint %s: %w", mint, err)
	}
	r.decimals.Add(mint, m.Decimals)
	return m.Decimals, nil
}

// TokenAccount decodes an SPL token account.
func (r *Reader) TokenAccount(ctx context.Context, address solana.PublicKey) (*token.Account, error) {
	acc, err := r.account(ctx, address)
	if err != nil {
		return nil, err
	}
	var ta token.Account
	if err := bin.NewBinDecoder(acc.Data.GetBinary()).Decode(&ta); err != nil {
		return nil, fmt.Errorf("decode token account %s: %w", address, err)
	}
	return &ta, nil
}

// Balance is a token balance in both unit systems.
type Balance struct {
	Account  solana.PublicKey `json:"account"`
	Mint     solana.PublicKey `json:"mint"`
	Amount   uint64           `json:"amount"`
	Human    decimal.Decimal  `json:"human"`
	Decimals uint8            `json:"decimals"`
	Exists   bool             `json:"exists"`
}

// TokenBalance reads owner's associated account for mint. A missing account
// is a zero balance, not an error.
func (r *Reader) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (Balance, error) {
	ata, err := derive.AssociatedTokenAddress(owner, mint)
	if err != nil {
		return Balance{}, err
	}
	b := Balance{Account: ata, Mint: mint, Human: decimal.Zero}

	ta, err := r.TokenAccount(ctx, ata)
	if errors.Is(err, common.ErrNotFound) {
		return b, nil
	}
	if err != nil {
		return b, err
	}
	dec, err := r.MintDecimals(ctx, mint)
	if err != nil {
		return b, err
	}
	b.Exists = true
	b.Amount = ta.Amount
	b.Decimals = dec
	b.Human = units.ToHumanUnits(ta.Amount, int32(dec))
	return b, nil
}
