package lut

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/ledger-orchestrator/internal/adapters/persistence"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	tables map[solana.PublicKey]*persistence.StoredTable
}

func newMemStore() *memStore {
	return &memStore{tables: make(map[solana.PublicKey]*persistence.StoredTable)}
}

func (s *memStore) Table(signer solana.PublicKey) (*persistence.StoredTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[signer], nil
}

func (s *memStore) SaveTable(signer solana.PublicKey, t *persistence.StoredTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[signer] = t
	return nil
}

func (s *memStore) DeleteTable(signer solana.PublicKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, signer)
	return nil
}

// tableData encodes an active table in the on-chain layout: a 56 byte
// header followed by the addresses.
func tableData(authority solana.PublicKey, addrs []solana.PublicKey, deactivation uint64) []byte {
	data := make([]byte, 56, 56+32*len(addrs))
	binary.LittleEndian.PutUint32(data[0:], 1)
	binary.LittleEndian.PutUint64(data[4:], deactivation)
	data[21] = 1
	copy(data[22:54], authority[:])
	for _, a := range addrs {
		data = append(data, a[:]...)
	}
	return data
}

// fakeSubmitter applies lookup table instructions to the fake ledger.
type fakeSubmitter struct {
	mu      sync.Mutex
	ledger  *blockchaintest.Ledger
	batches [][]solana.Instruction
	// activate controls whether created tables become readable.
	activate bool
	tables   map[solana.PublicKey][]solana.PublicKey
	err      error
	delay    time.Duration
}

func (f *fakeSubmitter) Direct(_ context.Context, session *domain.Session, _ domain.OperationKind, ixs []solana.Instruction) (domain.Receipt, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Receipt{}, f.err
	}
	f.batches = append(f.batches, ixs)
	for _, ix := range ixs {
		data, _ := ix.Data()
		table := ix.Accounts()[0].PublicKey
		switch binary.LittleEndian.Uint32(data) {
		case commandCreateLookupTable:
			f.tables[table] = nil
		case commandExtendLookupTable:
			n := binary.LittleEndian.Uint64(data[4:])
			for i := uint64(0); i < n; i++ {
				var k solana.PublicKey
				copy(k[:], data[12+32*i:])
				f.tables[table] = append(f.tables[table], k)
			}
		}
		if f.activate {
			f.ledger.Put(table, common.AddressLookupTableID, tableData(session.PublicKey(), f.tables[table], math.MaxUint64))
		}
	}
	return domain.Receipt{State: domain.StateConfirmed}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func addrs(n int, seed byte) []solana.PublicKey {
	out := make([]solana.PublicKey, n)
	for i := range out {
		out[i][0] = seed
		out[i][1] = byte(i)
		out[i][2] = byte(i >> 8)
	}
	return out
}

func newManager(t *testing.T, defaults int) (*Manager, *fakeSubmitter, *memStore, *blockchaintest.Ledger, *domain.Session) {
	t.Helper()
	ledger := blockchaintest.New()
	sub := &fakeSubmitter{ledger: ledger, activate: true, tables: make(map[solana.PublicKey][]solana.PublicKey)}
	store := newMemStore()
	m := NewManager(ledger, store, sub, Options{
		Defaults:          addrs(defaults, 0xAA),
		ActivationRetries: 3,
		ActivationDelay:   time.Millisecond,
	})
	key := solana.NewWallet().PrivateKey
	return m, sub, store, ledger, &domain.Session{Key: &key}
}

func TestEnsureTableIsStable(t *testing.T) {
	m, sub, _, ledger, session := newManager(t, 27)
	ctx := context.Background()

	first, err := m.EnsureTable(ctx, session, addrs(3, 1))
	require.NoError(t, err)
	want, _, err := derive.LookupTable(session.PublicKey(), ledger.Slot)
	require.NoError(t, err)
	require.Equal(t, want, first)

	// create + defaults in one transaction, the extra addresses in another
	require.Equal(t, 2, sub.count())
	require.Len(t, sub.batches[0], 2)

	second, err := m.EnsureTable(ctx, session, addrs(3, 2))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 2, sub.count())
}

func TestEnsureTableBatchesExtensions(t *testing.T) {
	m, sub, _, _, session := newManager(t, 0)
	_, err := m.EnsureTable(context.Background(), session, addrs(45, 1))
	require.NoError(t, err)
	// create alone, then 20 + 20 + 5
	require.Equal(t, 4, sub.count())
	require.Len(t, sub.batches[0], 1)
}

func TestEnsureTableCeiling(t *testing.T) {
	m, sub, _, _, session := newManager(t, 27)
	_, err := m.EnsureTable(context.Background(), session, addrs(230, 1))
	require.ErrorIs(t, err, common.ErrTableFull)
	require.Zero(t, sub.count())

	// repeats of default addresses do not count twice
	_, err = m.EnsureTable(context.Background(), session, append(addrs(229, 1), addrs(27, 0xAA)...))
	require.NoError(t, err)
}

func TestInvalidateRecreates(t *testing.T) {
	m, sub, store, ledger, session := newManager(t, 5)
	ctx := context.Background()

	first, err := m.EnsureTable(ctx, session, nil)
	require.NoError(t, err)
	require.NoError(t, m.Invalidate(session.PublicKey()))

	stored, err := store.Table(session.PublicKey())
	require.NoError(t, err)
	require.Nil(t, stored)

	ledger.Slot++
	second, err := m.EnsureTable(ctx, session, nil)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, 2, sub.count())
}

func TestEnsureTableUnauthenticated(t *testing.T) {
	m, _, _, _, _ := newManager(t, 1)
	_, err := m.EnsureTable(context.Background(), &domain.Session{}, nil)
	require.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestEnsureTableSharesFlight(t *testing.T) {
	m, sub, _, _, session := newManager(t, 3)
	sub.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	results := make([]solana.PublicKey, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = m.EnsureTable(context.Background(), session, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, sub.count())
	for _, r := range results[1:] {
		require.Equal(t, results[0], r)
	}
}

func TestFetchActive(t *testing.T) {
	m, _, _, ledger, session := newManager(t, 0)
	ctx := context.Background()
	table := solana.NewWallet().PublicKey()

	_, err := m.FetchActive(ctx, table)
	require.ErrorIs(t, err, common.ErrTableNotActive)

	ledger.Put(table, common.AddressLookupTableID, tableData(session.PublicKey(), nil, math.MaxUint64))
	_, err = m.FetchActive(ctx, table)
	require.ErrorIs(t, err, common.ErrTableNotActive)

	ledger.Put(table, common.AddressLookupTableID, tableData(session.PublicKey(), addrs(2, 1), 10))
	_, err = m.FetchActive(ctx, table)
	require.ErrorIs(t, err, common.ErrTableNotActive)

	ledger.Put(table, common.AddressLookupTableID, tableData(session.PublicKey(), addrs(2, 1), math.MaxUint64))
	snap, err := m.FetchActive(ctx, table)
	require.NoError(t, err)
	require.Equal(t, solana.PublicKeySlice(addrs(2, 1)), snap.Addresses)
	require.Equal(t, session.PublicKey(), snap.Authority)
}

func TestAcquireRecoversFromStaleHandle(t *testing.T) {
	m, sub, store, _, session := newManager(t, 4)
	ctx := context.Background()

	gone := solana.NewWallet().PublicKey()
	require.NoError(t, store.SaveTable(session.PublicKey(), &persistence.StoredTable{Address: gone.String()}))

	snap, err := m.Acquire(ctx, session, nil)
	require.NoError(t, err)
	require.NotEqual(t, gone, snap.Address)
	require.Len(t, snap.Addresses, 4)
	require.Equal(t, 1, sub.count())

	stored, err := store.Table(session.PublicKey())
	require.NoError(t, err)
	require.Equal(t, snap.Address.String(), stored.Address)
}

func TestAcquireKeepsConcurrentHandle(t *testing.T) {
	m, sub, store, ledger, session := newManager(t, 2)
	ctx := context.Background()

	// another flow already stored a working table
	winner := solana.NewWallet().PublicKey()
	ledger.Put(winner, common.AddressLookupTableID, tableData(session.PublicKey(), addrs(2, 9), math.MaxUint64))
	stale := solana.NewWallet().PublicKey()
	require.NoError(t, store.SaveTable(session.PublicKey(), &persistence.StoredTable{Address: winner.String()}))

	require.NoError(t, m.invalidateIf(session.PublicKey(), stale))
	snap, err := m.Acquire(ctx, session, nil)
	require.NoError(t, err)
	require.Equal(t, winner, snap.Address)
	require.Zero(t, sub.count())
}

func TestAcquireGivesUpWhenNeverActive(t *testing.T) {
	m, sub, _, _, session := newManager(t, 2)
	sub.activate = false

	_, err := m.Acquire(context.Background(), session, nil)
	require.ErrorIs(t, err, common.ErrTableNotActive)
	require.Equal(t, 2, sub.count())
}

func TestCreateFailurePropagates(t *testing.T) {
	m, sub, store, _, session := newManager(t, 2)
	sub.err = errors.New("boom")

	_, err := m.EnsureTable(context.Background(), session, nil)
	require.Error(t, err)
	stored, _ := store.Table(session.PublicKey())
	require.Nil(t, stored)
}
