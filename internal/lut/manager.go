// Package lut keeps one address lookup table per signer, creating it on
// first use and recovering when the persisted handle goes stale.
package lut

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	addresslookuptable "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/adapters/persistence"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/metrics"
)

// HandleStore persists signer -> table handles.
type HandleStore interface {
	Table(signer solana.PublicKey) (*persistence.StoredTable, error)
	SaveTable(signer solana.PublicKey, table *persistence.StoredTable) error
	DeleteTable(signer solana.PublicKey) error
}

// Submitter sends client-signed transactions and waits for confirmation.
type Submitter interface {
	Direct(ctx context.Context, session *domain.Session, kind domain.OperationKind, instructions []solana.Instruction) (domain.Receipt, error)
}

type Options struct {
	// Defaults are written into every new table together with its creation.
	Defaults          []solana.PublicKey
	ActivationRetries int
	ActivationDelay   time.Duration
}

// Snapshot is the readable content of an active table.
type Snapshot struct {
	Address   solana.PublicKey
	Authority solana.PublicKey
	Addresses solana.PublicKeySlice
}

type Manager struct {
	client blockchain.LedgerRPC
	store  HandleStore
	submit Submitter
	opts   Options

	flights singleflight.Group
}

func NewManager(client blockchain.LedgerRPC, store HandleStore, submit Submitter, opts Options) *Manager {
	if opts.ActivationRetries < 1 {
		opts.ActivationRetries = 1
	}
	return &Manager{
		client: client,
		store:  store,
		submit: submit,
		opts:   opts,
	}
}

type ensured struct {
	table   solana.PublicKey
	created bool
}

// EnsureTable returns the signer's table, creating and extending a new one
// when no handle is persisted.
func (m *Manager) EnsureTable(ctx context.Context, session *domain.Session, extra []solana.PublicKey) (solana.PublicKey, error) {
	res, err := m.ensure(ctx, session, extra)
	return res.table, err
}

func (m *Manager) ensure(ctx context.Context, session *domain.Session, extra []solana.PublicKey) (ensured, error) {
	if !session.Connected() {
		return ensured{}, common.ErrUnauthenticated
	}
	signer := session.PublicKey()

	v, err, _ := m.flights.Do(signer.String(), func() (any, error) {
		stored, err := m.store.Table(signer)
		if err != nil {
			return ensured{}, err
		}
		if stored != nil {
			table, err := stored.PublicKey()
			if err == nil {
				return ensured{table: table}, nil
			}
			log.Warn().Str("signer", signer.String()).Err(err).Msg("[LookupTableManager] unreadable handle, recreating")
		}
		table, err := m.create(ctx, session, extra)
		if err != nil {
			return ensured{}, err
		}
		return ensured{table: table, created: true}, nil
	})
	if err != nil {
		return ensured{}, err
	}
	return v.(ensured), nil
}

// addressSet joins defaults and extra without repeats, keeping first-seen
// order, and enforces the per-table ceiling.
func (m *Manager) addressSet(extra []solana.PublicKey) ([]solana.PublicKey, []solana.PublicKey, error) {
	seen := make(map[solana.PublicKey]struct{}, len(m.opts.Defaults)+len(extra))
	pick := func(in []solana.PublicKey) []solana.PublicKey {
		var out []solana.PublicKey
		for _, a := range in {
			if a.IsZero() {
				continue
			}
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
		return out
	}
	defaults := pick(m.opts.Defaults)
	rest := pick(extra)
	if n := len(defaults) + len(rest); n > common.MaxLookupTableAddresses {
		return nil, nil, fmt.Errorf("%w: %d addresses, max %d", common.ErrTableFull, n, common.MaxLookupTableAddresses)
	}
	return defaults, rest, nil
}

func (m *Manager) create(ctx context.Context, session *domain.Session, extra []solana.PublicKey) (solana.PublicKey, error) {
	signer := session.PublicKey()
	defaults, rest, err := m.addressSet(extra)
	if err != nil {
		return solana.PublicKey{}, err
	}

	slot, err := m.client.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("get finalized slot: %w", err)
	}
	table, bump, err := derive.LookupTable(signer, slot)
	if err != nil {
		return solana.PublicKey{}, err
	}

	createIx, err := CreateInstruction(table, signer, slot, bump)
	if err != nil {
		return solana.PublicKey{}, err
	}
	ixs := []solana.Instruction{createIx}
	if len(defaults) > 0 {
		extendIx, err := ExtendInstruction(table, signer, defaults)
		if err != nil {
			return solana.PublicKey{}, err
		}
		ixs = append(ixs, extendIx)
	}
	if _, err := m.submit.Direct(ctx, session, domain.OpLookupTable, ixs); err != nil {
		return solana.PublicKey{}, common.NewOperationError("create lookup table", table, err)
	}
	metrics.RecordLookupTable("created")

	for start := 0; start < len(rest); start += common.ExtendBatchSize {
		end := min(start+common.ExtendBatchSize, len(rest))
		extendIx, err := ExtendInstruction(table, signer, rest[start:end])
		if err != nil {
			return solana.PublicKey{}, err
		}
		if _, err := m.submit.Direct(ctx, session, domain.OpLookupTable, []solana.Instruction{extendIx}); err != nil {
			return solana.PublicKey{}, common.NewOperationError("extend lookup table", table, err)
		}
		metrics.RecordLookupTable("extended")
	}

	if err := m.store.SaveTable(signer, &persistence.StoredTable{
		Address:   table.String(),
		Authority: signer.String(),
		Slot:      slot,
		Addresses: len(defaults) + len(rest),
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		return solana.PublicKey{}, fmt.Errorf("persist lookup table: %w", err)
	}

	log.Info().
		Str("signer", signer.String()).
		Str("table", table.String()).
		Int("addresses", len(defaults)+len(rest)).
		Msg("[LookupTableManager] created table")
	return table, nil
}

// FetchActive reads table. Missing, deactivated or empty tables report
// common.ErrTableNotActive.
func (m *Manager) FetchActive(ctx context.Context, table solana.PublicKey) (*Snapshot, error) {
	res, err := m.client.GetAccountInfoWithOpts(ctx, table, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, common.NewOperationError("fetch lookup table", table, common.ErrTableNotActive)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch lookup table %s: %w", table, err)
	}

	state, err := addresslookuptable.DecodeAddressLookupTableState(res.Value.Data.GetBinary())
	if err != nil {
		return nil, common.NewOperationError("decode lookup table", table, fmt.Errorf("%w: %v", common.ErrTableNotActive, err))
	}
	if !state.IsActive() || len(state.Addresses) == 0 {
		return nil, common.NewOperationError("fetch lookup table", table, common.ErrTableNotActive)
	}

	snap := &Snapshot{Address: table, Addresses: state.Addresses}
	if state.Authority != nil {
		snap.Authority = *state.Authority
	}
	return snap, nil
}

// Invalidate clears signer's persisted handle.
func (m *Manager) Invalidate(signer solana.PublicKey) error {
	if err := m.store.DeleteTable(signer); err != nil {
		return err
	}
	metrics.RecordLookupTable("invalidated")
	log.Info().Str("signer", signer.String()).Msg("[LookupTableManager] invalidated table handle")
	return nil
}

// invalidateIf clears the handle only while it still points at table; a
// concurrent flow may already have stored a fresh one.
func (m *Manager) invalidateIf(signer, table solana.PublicKey) error {
	stored, err := m.store.Table(signer)
	if err != nil || stored == nil {
		return err
	}
	if stored.Address != table.String() {
		return nil
	}
	return m.Invalidate(signer)
}

// Acquire returns an active table for session. A freshly created table is
// polled until it activates; a stale persisted handle is invalidated and the
// whole flow runs once more.
func (m *Manager) Acquire(ctx context.Context, session *domain.Session, extra []solana.PublicKey) (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		res, err := m.ensure(ctx, session, extra)
		if err != nil {
			return nil, err
		}

		snap, err := m.await(ctx, res)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, common.ErrTableNotActive) {
			return nil, err
		}
		lastErr = err

		metrics.RecordLookupTable("stale")
		log.Warn().
			Str("table", res.table.String()).
			Bool("created", res.created).
			Msg("[LookupTableManager] table not active, re-reading handle")
		if err := m.invalidateIf(session.PublicKey(), res.table); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (m *Manager) await(ctx context.Context, res ensured) (*Snapshot, error) {
	tries := 1
	if res.created {
		tries = m.opts.ActivationRetries
	}
	var err error
	for i := 0; i < tries; i++ {
		var snap *Snapshot
		if snap, err = m.FetchActive(ctx, res.table); err == nil {
			return snap, nil
		}
		if !errors.Is(err, common.ErrTableNotActive) || i == tries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.opts.ActivationDelay):
		}
	}
	return nil, err
}
