package route

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

var (
	v4Program     = common.DefaultRaydiumV4ID
	marketProgram = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
)

func key(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = b
	return k
}

// nonceFor finds a nonce for which the vault signer derivation succeeds or
// fails, depending on want.
func nonceFor(t *testing.T, market solana.PublicKey, want bool) uint64 {
	t.Helper()
	for n := uint64(0); n < 512; n++ {
		_, err := derive.VaultSigner(market, n, marketProgram)
		if (err == nil) == want {
			return n
		}
	}
	t.Fatal("no suitable nonce")
	return 0
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bin.NewBinEncoder(&buf).Encode(v))
	return buf.Bytes()
}

type fixture struct {
	ledger *blockchaintest.Ledger
	pool   solana.PublicKey
	amm    AmmInfoV4
	market MarketStateV3
}

func newFixture(t *testing.T, signerOK bool) *fixture {
	f := &fixture{ledger: blockchaintest.New(), pool: key(1)}
	marketID := key(2)

	f.amm = AmmInfoV4{
		Status:          6,
		Nonce:           254,
		BaseVault:       key(10),
		QuoteVault:      key(11),
		BaseMint:        solana.WrappedSol,
		QuoteMint:       key(13),
		LpMint:          key(14),
		OpenOrders:      key(15),
		MarketID:        marketID,
		MarketProgramID: marketProgram,
		TargetOrders:    key(16),
		Owner:           key(17),
	}
	f.market = MarketStateV3{
		OwnAddress:       marketID,
		VaultSignerNonce: nonceFor(t, marketID, signerOK),
		BaseMint:         solana.WrappedSol,
		QuoteMint:        key(13),
		BaseVault:        key(20),
		QuoteVault:       key(21),
		RequestQueue:     key(22),
		EventQueue:       key(23),
		Bids:             key(24),
		Asks:             key(25),
	}

	ammData := encode(t, &f.amm)
	require.Len(t, ammData, AmmInfoV4Size)
	marketData := encode(t, &f.market)
	require.Len(t, marketData, MarketStateV3Size)

	f.ledger.Put(f.pool, v4Program, ammData)
	f.ledger.Put(marketID, marketProgram, marketData)
	return f
}

func TestResolveDecodesPoolAndMarket(t *testing.T) {
	f := newFixture(t, true)
	r := NewResolver(f.ledger, v4Program, nil)

	d, err := r.Resolve(context.Background(), f.pool)
	require.NoError(t, err)

	authority, err := derive.RaydiumV4{Program: v4Program}.Authority()
	require.NoError(t, err)
	signer, err := derive.VaultSigner(f.amm.MarketID, f.market.VaultSignerNonce, marketProgram)
	require.NoError(t, err)

	require.Equal(t, f.pool, d.Pool)
	require.Equal(t, authority, d.Authority)
	require.Equal(t, f.amm.OpenOrders, d.OpenOrders)
	require.Equal(t, f.amm.TargetOrders, d.TargetOrders)
	require.Equal(t, f.amm.BaseVault, d.BaseVault)
	require.Equal(t, f.amm.QuoteVault, d.QuoteVault)
	require.Equal(t, f.amm.LpMint, d.LPMint)
	require.Equal(t, marketProgram, d.MarketProgram)
	require.Equal(t, f.market.Bids, d.MarketBids)
	require.Equal(t, f.market.Asks, d.MarketAsks)
	require.Equal(t, f.market.EventQueue, d.MarketEventQueue)
	require.Equal(t, f.market.BaseVault, d.MarketBaseVault)
	require.Equal(t, f.market.QuoteVault, d.MarketQuoteVault)
	require.Equal(t, signer, d.MarketVaultSigner)
}

func TestLayoutOffsets(t *testing.T) {
	f := newFixture(t, true)
	data := encode(t, &f.amm)
	require.Equal(t, f.amm.BaseVault[:], data[336:368])
	require.Equal(t, f.amm.MarketID[:], data[528:560])
	require.Equal(t, f.amm.TargetOrders[:], data[592:624])

	m := encode(t, &f.market)
	require.Equal(t, f.market.BaseVault[:], m[117:149])
	require.Equal(t, f.market.EventQueue[:], m[253:285])
	require.Equal(t, f.market.Asks[:], m[317:349])
}

func TestResolvePinnedSkipsLedger(t *testing.T) {
	f := newFixture(t, true)
	r := NewResolver(f.ledger, v4Program, nil)
	pinned := domain.PoolRouteDescriptor{Pool: key(40), Market: key(41)}
	r.Pin(pinned)

	d, err := r.Resolve(context.Background(), key(40))
	require.NoError(t, err)
	require.Equal(t, pinned, d)
	require.Zero(t, f.ledger.AccountReads)

	_, err = r.Resolve(context.Background(), f.pool)
	require.NoError(t, err)
	require.Equal(t, 2, f.ledger.AccountReads)

	// non-pinned pools are read again every time
	_, err = r.Resolve(context.Background(), f.pool)
	require.NoError(t, err)
	require.Equal(t, 4, f.ledger.AccountReads)
}

func TestResolveStringIgnoresCase(t *testing.T) {
	f := newFixture(t, true)
	r := NewResolver(f.ledger, v4Program, nil)
	pinned := domain.PoolRouteDescriptor{Pool: key(40)}
	r.Pin(pinned)

	d, err := r.ResolveString(context.Background(), "  "+swapCase(key(40).String()))
	require.NoError(t, err)
	require.Equal(t, pinned, d)
	require.Zero(t, f.ledger.AccountReads)
}

func swapCase(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 32
		case c >= 'A' && c <= 'Z':
			out[i] = c + 32
		}
	}
	return string(out)
}

func TestResolveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unexpected owner", func(t *testing.T) {
		f := newFixture(t, true)
		f.ledger.Put(f.pool, key(99), encode(t, &f.amm))
		_, err := NewResolver(f.ledger, v4Program, nil).Resolve(ctx, f.pool)
		require.ErrorIs(t, err, common.ErrUnexpectedOwner)
		require.Contains(t, err.Error(), f.pool.String())
	})

	t.Run("missing pool", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := NewResolver(f.ledger, v4Program, nil).Resolve(ctx, key(77))
		require.ErrorIs(t, err, common.ErrPoolNotFound)
	})

	t.Run("missing market", func(t *testing.T) {
		f := newFixture(t, true)
		f.ledger.Delete(f.amm.MarketID)
		_, err := NewResolver(f.ledger, v4Program, nil).Resolve(ctx, f.pool)
		require.ErrorIs(t, err, common.ErrPoolNotFound)
	})

	t.Run("vault signer", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := NewResolver(f.ledger, v4Program, nil).Resolve(ctx, f.pool)
		require.ErrorIs(t, err, common.ErrVaultSignerDerivationFailed)
	})

	t.Run("short pool data", func(t *testing.T) {
		f := newFixture(t, true)
		f.ledger.Put(f.pool, v4Program, make([]byte, 100))
		_, err := NewResolver(f.ledger, v4Program, nil).Resolve(ctx, f.pool)
		require.Error(t, err)
	})
}

type memStore struct {
	routes []domain.PoolRouteDescriptor
}

func (m *memStore) SaveRoutes(r []domain.PoolRouteDescriptor) error {
	m.routes = append(m.routes, r...)
	return nil
}

func (m *memStore) LoadRoutes() ([]domain.PoolRouteDescriptor, error) {
	return m.routes, nil
}

func TestWarmPinsAndPersists(t *testing.T) {
	f := newFixture(t, true)
	store := &memStore{}
	r := NewResolver(f.ledger, v4Program, store)

	require.NoError(t, r.Warm(context.Background(), f.pool))
	require.Len(t, store.routes, 1)

	reads := f.ledger.AccountReads
	_, err := r.Resolve(context.Background(), f.pool)
	require.NoError(t, err)
	require.Equal(t, reads, f.ledger.AccountReads)

	// a fresh resolver picks the pinned pool up from the store
	next := NewResolver(f.ledger, v4Program, store)
	n, err := next.LoadStored()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, ok := next.Pinned(f.pool.String())
	require.True(t, ok)
}

func TestLoadPinnedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	body := `[{"pool":"` + key(40).String() + `","market":"` + key(41).String() + `"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r := NewResolver(blockchaintest.New(), v4Program, nil)
	n, err := r.LoadPinnedFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	d, ok := r.Pinned(key(40).String())
	require.True(t, ok)
	require.Equal(t, key(41), d.Market)
}

func TestSwapAccountsOrder(t *testing.T) {
	f := newFixture(t, true)
	d, err := NewResolver(f.ledger, v4Program, nil).Resolve(context.Background(), f.pool)
	require.NoError(t, err)

	src, dst, owner := key(50), key(51), key(52)
	metas := SwapAccounts(d, src, dst, owner)
	require.Len(t, metas, 18)

	require.Equal(t, v4Program, metas[0].PublicKey)
	require.False(t, metas[0].IsWritable)
	require.Equal(t, f.pool, metas[1].PublicKey)
	require.True(t, metas[1].IsWritable)
	require.Equal(t, d.BaseVault, metas[4].PublicKey)
	require.Equal(t, d.MarketVaultSigner, metas[13].PublicKey)
	require.Equal(t, src, metas[14].PublicKey)
	require.Equal(t, dst, metas[15].PublicKey)
	require.Equal(t, owner, metas[16].PublicKey)
	require.True(t, metas[16].IsSigner)
	require.Equal(t, common.TokenProgramID, metas[17].PublicKey)

	roles := SwapRoles(d, src, dst, owner)
	require.Len(t, roles, 18)
	require.Equal(t, d.Market, roles["swapAccounts.market"])
}
