// Package route resolves the accounts a swap through a Raydium pool needs.
package route

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

// RouteStore persists descriptors so pinned pools survive restarts without
// a pinned-pools file.
type RouteStore interface {
	SaveRoutes(routes []domain.PoolRouteDescriptor) error
	LoadRoutes() ([]domain.PoolRouteDescriptor, error)
}

type Resolver struct {
	client  blockchain.LedgerRPC
	program solana.PublicKey
	store   RouteStore

	mu     sync.RWMutex
	pinned map[string]domain.PoolRouteDescriptor
}

// NewResolver returns a resolver for pools owned by v4Program. store may be nil.
func NewResolver(client blockchain.LedgerRPC, v4Program solana.PublicKey, store RouteStore) *Resolver {
	return &Resolver{
		client:  client,
		program: v4Program,
		store:   store,
		pinned:  make(map[string]domain.PoolRouteDescriptor),
	}
}

func pinKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Pin registers descriptors that Resolve answers without touching the ledger.
func (r *Resolver) Pin(descs ...domain.PoolRouteDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range descs {
		r.pinned[pinKey(d.Pool.String())] = d
	}
}

func (r *Resolver) Pinned(address string) (domain.PoolRouteDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.pinned[pinKey(address)]
	return d, ok
}

// LoadPinnedFile pins every descriptor in a JSON array file.
func (r *Resolver) LoadPinnedFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pinned pools: %w", err)
	}
	var descs []domain.PoolRouteDescriptor
	if err := sonic.Unmarshal(raw, &descs); err != nil {
		return 0, fmt.Errorf("parse pinned pools %s: %w", path, err)
	}
	r.Pin(descs...)
	return len(descs), nil
}

// LoadStored pins descriptors saved by an earlier Warm.
func (r *Resolver) LoadStored() (int, error) {
	if r.store == nil {
		return 0, nil
	}
	descs, err := r.store.LoadRoutes()
	if err != nil {
		return 0, err
	}
	r.Pin(descs...)
	return len(descs), nil
}

// Warm makes sure every pool in pools is pinned, resolving the missing ones
// from the ledger and persisting them.
func (r *Resolver) Warm(ctx context.Context, pools ...solana.PublicKey) error {
	var fresh []domain.PoolRouteDescriptor
	for _, pool := range pools {
		if _, ok := r.Pinned(pool.String()); ok {
			continue
		}
		desc, err := r.fetch(ctx, pool)
		if err != nil {
			return err
		}
		fresh = append(fresh, desc)
	}
	if len(fresh) == 0 {
		return nil
	}
	r.Pin(fresh...)
	log.Info().Int("pools", len(fresh)).Msg("[RouteResolver] pinned pools from ledger")
	if r.store != nil {
		if err := r.store.SaveRoutes(fresh); err != nil {
			log.Warn().Err(err).Msg("[RouteResolver] failed to persist pinned pools")
		}
	}
	return nil
}

// Resolve returns the route descriptor of pool. Pinned pools never hit the
// ledger; any other pool is read and validated on every call.
func (r *Resolver) Resolve(ctx context.Context, pool solana.PublicKey) (domain.PoolRouteDescriptor, error) {
	if d, ok := r.Pinned(pool.String()); ok {
		metrics.RecordRouteResolution("pinned")
		return d, nil
	}
	d, err := r.fetch(ctx, pool)
	if err != nil {
		metrics.RecordRouteResolution("failed")
		return domain.PoolRouteDescriptor{}, err
	}
	metrics.RecordRouteResolution("fetched")
	return d, nil
}

// ResolveString accepts a hand-typed address; pinned pools match regardless
// of case.
func (r *Resolver) ResolveString(ctx context.Context, address string) (domain.PoolRouteDescriptor, error) {
	if d, ok := r.Pinned(address); ok {
		metrics.RecordRouteResolution("pinned")
		return d, nil
	}
	pool, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return domain.PoolRouteDescriptor{}, fmt.Errorf("%w: %q is not an address", common.ErrPoolNotFound, address)
	}
	return r.Resolve(ctx, pool)
}

func (r *Resolver) account(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	res, err := r.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, common.NewOperationError("resolve pool", address, common.ErrPoolNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", address, err)
	}
	return res.Value, nil
}

func (r *Resolver) fetch(ctx context.Context, pool solana.PublicKey) (domain.PoolRouteDescriptor, error) {
	acc, err := r.account(ctx, pool)
	if err != nil {
		return domain.PoolRouteDescriptor{}, err
	}
	if acc.Owner != r.program {
		return domain.PoolRouteDescriptor{}, common.NewOperationError("resolve pool", pool,
			fmt.Errorf("%w: owner %s, want %s", common.ErrUnexpectedOwner, acc.Owner, r.program))
	}
	amm, err := decodeAmmInfoV4(acc.Data.GetBinary())
	if err != nil {
		return domain.PoolRouteDescriptor{}, common.NewOperationError("resolve pool", pool, err)
	}

	mAcc, err := r.account(ctx, amm.MarketID)
	if err != nil {
		return domain.PoolRouteDescriptor{}, err
	}
	if mAcc.Owner != amm.MarketProgramID {
		return domain.PoolRouteDescriptor{}, common.NewOperationError("resolve market", amm.MarketID,
			fmt.Errorf("%w: owner %s, want %s", common.ErrUnexpectedOwner, mAcc.Owner, amm.MarketProgramID))
	}
	market, err := decodeMarketStateV3(mAcc.Data.GetBinary())
	if err != nil {
		return domain.PoolRouteDescriptor{}, common.NewOperationError("resolve market", amm.MarketID, err)
	}

	authority, err := derive.RaydiumV4{Program: r.program}.Authority()
	if err != nil {
		return domain.PoolRouteDescriptor{}, err
	}
	signer, err := derive.VaultSigner(amm.MarketID, market.VaultSignerNonce, amm.MarketProgramID)
	if err != nil {
		return domain.PoolRouteDescriptor{}, common.NewOperationError("derive vault signer", amm.MarketID,
			fmt.Errorf("%w: nonce %d: %v", common.ErrVaultSignerDerivationFailed, market.VaultSignerNonce, err))
	}

	log.Debug().Str("pool", pool.String()).Str("market", amm.MarketID.String()).Msg("[RouteResolver] resolved pool from ledger")

	return domain.PoolRouteDescriptor{
		Pool:              pool,
		Program:           r.program,
		Authority:         authority,
		OpenOrders:        amm.OpenOrders,
		TargetOrders:      amm.TargetOrders,
		BaseVault:         amm.BaseVault,
		QuoteVault:        amm.QuoteVault,
		BaseMint:          amm.BaseMint,
		QuoteMint:         amm.QuoteMint,
		LPMint:            amm.LpMint,
		MarketProgram:     amm.MarketProgramID,
		Market:            amm.MarketID,
		MarketBids:        market.Bids,
		MarketAsks:        market.Asks,
		MarketEventQueue:  market.EventQueue,
		MarketBaseVault:   market.BaseVault,
		MarketQuoteVault:  market.QuoteVault,
		MarketVaultSigner: signer,
	}, nil
}
