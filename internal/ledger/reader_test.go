package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

var (
	programs = Programs{
		Crowdfunding: solana.MustPublicKeyFromBase58("AqXKuogwtfi45d4vKdUdXymr2yQhBXsfV8hADmL8NYy6"),
		NFTMining:    solana.MustPublicKeyFromBase58("Cyc7r9MqrmNECxDhs25cmjWdY6kXxWtUZmezBFCfaJkb"),
		Staking:      solana.MustPublicKeyFromBase58("FfTLXfiSaB72MRCJH2xtmuV4rXFQi24ubC85kq4LPi1h"),
		Vesting:      solana.MustPublicKeyFromBase58("9YLCGJaks5rLCpthMP8LoqW72yzkuxBGVxRzGK3ACrTc"),
	}
	alice = solana.NewWallet().PublicKey()
	bob   = solana.NewWallet().PublicKey()
	mint  = solana.NewWallet().PublicKey()
)

func encodeRecord(t *testing.T, kind domain.RecordKind, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	d := kind.Discriminator()
	buf.Write(d[:])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(v))
	return buf.Bytes()
}

func mintData(decimals uint8) []byte {
	data := make([]byte, 82)
	data[44] = decimals
	data[45] = 1
	return data
}

func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = 1
	return data
}

func newReader(t *testing.T) (*Reader, *blockchaintest.Ledger) {
	t.Helper()
	l := blockchaintest.New()
	return NewReader(l, programs), l
}

func TestCrowdfundingInfo(t *testing.T) {
	r, l := newReader(t)
	ctx := context.Background()

	_, err := r.CrowdfundingInfo(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	addr, err := derive.Crowdfunding{Program: programs.Crowdfunding}.Instance()
	require.NoError(t, err)
	info := domain.CrowdfundingInfo{Initialized: true, Admin: alice, SoldShares: 12, PhaseCount: 3, ProjectSigner: bob}
	l.Put(addr, programs.Crowdfunding, encodeRecord(t, domain.KindCrowdfundingInfo, &info))

	got, err := r.CrowdfundingInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, addr, got.Address)
	require.Equal(t, info, got.Record)
}

func TestWrongDiscriminatorIsNotFound(t *testing.T) {
	r, l := newReader(t)
	addr, _ := derive.Crowdfunding{Program: programs.Crowdfunding}.SalePhase(1)
	l.Put(addr, programs.Crowdfunding, encodeRecord(t, domain.KindUserPurchase, &domain.SalePhase{PhaseID: 1}))

	_, err := r.SalePhase(context.Background(), 1)
	require.ErrorIs(t, err, common.ErrNotFound)

	var oe *common.OperationError
	require.True(t, errors.As(err, &oe))
	require.Equal(t, addr.String(), oe.Address)
}

func TestSalePhasesNewestFirst(t *testing.T) {
	r, l := newReader(t)
	cf := derive.Crowdfunding{Program: programs.Crowdfunding}
	for _, id := range []uint32{2, 5, 1} {
		addr, _ := cf.SalePhase(uint64(id))
		l.Put(addr, programs.Crowdfunding, encodeRecord(t, domain.KindSalePhase, &domain.SalePhase{PhaseID: id}))
	}
	// a record of another kind must not show up
	other, _ := cf.Instance()
	l.Put(other, programs.Crowdfunding, encodeRecord(t, domain.KindCrowdfundingInfo, &domain.CrowdfundingInfo{}))

	phases, err := r.SalePhases(context.Background())
	require.NoError(t, err)
	require.Len(t, phases, 3)
	require.Equal(t, []uint32{5, 2, 1}, []uint32{phases[0].Record.PhaseID, phases[1].Record.PhaseID, phases[2].Record.PhaseID})
}

func TestUserPurchasesFilteredByOwner(t *testing.T) {
	r, l := newReader(t)
	cf := derive.Crowdfunding{Program: programs.Crowdfunding}
	put := func(user solana.PublicKey, sold uint64, ts int64) {
		addr, err := cf.UserPurchase(user, 1, sold)
		require.NoError(t, err)
		l.Put(addr, programs.Crowdfunding, encodeRecord(t, domain.KindUserPurchase, &domain.UserPurchase{
			User: user, PhaseID: 1, PurchaseID: sold, PurchaseTime: ts,
		}))
	}
	put(alice, 0, 100)
	put(alice, 4, 300)
	put(bob, 2, 200)

	got, err := r.UserPurchases(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(300), got[0].Record.PurchaseTime)
	require.Equal(t, int64(100), got[1].Record.PurchaseTime)
}

func TestOrderInfosFilteredClientSide(t *testing.T) {
	r, l := newReader(t)
	nft := derive.NFTMining{Program: programs.NFTMining}
	for i, owner := range []solana.PublicKey{alice, bob, alice} {
		addr, _ := nft.OrderInfo(uint64(i + 1))
		l.Put(addr, programs.NFTMining, encodeRecord(t, domain.KindOrderInfo, &domain.OrderInfo{
			UserAddress: owner, OrderInfoIndex: uint64(i + 1),
		}))
	}
	got, err := r.OrderInfos(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(3), got[0].Record.OrderInfoIndex)
}

func TestVestingSchedulesByBeneficiary(t *testing.T) {
	r, l := newReader(t)
	v := derive.Vesting{Program: programs.Vesting}
	a, _ := v.Schedule(alice, bob, mint)
	b, _ := v.Schedule(bob, alice, mint)
	l.Put(a, programs.Vesting, encodeRecord(t, domain.KindVestingSchedule, &domain.VestingSchedule{Creator: alice, Beneficiary: bob, Mint: mint, CreatedAt: 5}))
	l.Put(b, programs.Vesting, encodeRecord(t, domain.KindVestingSchedule, &domain.VestingSchedule{Creator: bob, Beneficiary: alice, Mint: mint, CreatedAt: 9}))

	got, err := r.VestingSchedules(context.Background(), VestingFilter{Beneficiary: bob})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a, got[0].Address)

	all, err := r.VestingSchedules(context.Background(), VestingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, b, all[0].Address)
}

func TestExistsTriState(t *testing.T) {
	r, l := newReader(t)
	ctx := context.Background()
	present := solana.NewWallet().PublicKey()
	missing := solana.NewWallet().PublicKey()
	flaky := solana.NewWallet().PublicKey()
	l.Put(present, common.TokenProgramID, []byte{1})
	l.Fail[flaky] = true

	e, err := r.Exists(ctx, present)
	require.NoError(t, err)
	require.Equal(t, Exists, e)

	e, err = r.Exists(ctx, missing)
	require.NoError(t, err)
	require.Equal(t, Absent, e)

	e, err = r.Exists(ctx, flaky)
	require.ErrorIs(t, err, common.ErrIndeterminate)
	require.Equal(t, Indeterminate, e)
	require.True(t, common.IsRetryable(err))

	many, err := r.ExistsMany(ctx, []solana.PublicKey{present, missing})
	require.NoError(t, err)
	require.Equal(t, []Existence{Exists, Absent}, many)

	_, err = r.ExistsMany(ctx, []solana.PublicKey{present, flaky})
	require.ErrorIs(t, err, common.ErrIndeterminate)
}

func TestMintDecimalsCached(t *testing.T) {
	r, l := newReader(t)
	l.Put(mint, common.TokenProgramID, mintData(6))

	d, err := r.MintDecimals(context.Background(), mint)
	require.NoError(t, err)
	require.Equal(t, uint8(6), d)
	reads := l.AccountReads

	d, err = r.MintDecimals(context.Background(), mint)
	require.NoError(t, err)
	require.Equal(t, uint8(6), d)
	require.Equal(t, reads, l.AccountReads)
}

func TestTokenBalance(t *testing.T) {
	r, l := newReader(t)
	ctx := context.Background()
	l.Put(mint, common.TokenProgramID, mintData(6))

	b, err := r.TokenBalance(ctx, alice, mint)
	require.NoError(t, err)
	require.False(t, b.Exists)
	require.True(t, b.Human.IsZero())

	ata, _ := derive.AssociatedTokenAddress(alice, mint)
	l.Put(ata, common.TokenProgramID, tokenAccountData(mint, alice, 2_500_000))
	b, err = r.TokenBalance(ctx, alice, mint)
	require.NoError(t, err)
	require.True(t, b.Exists)
	require.Equal(t, uint64(2_500_000), b.Amount)
	require.Equal(t, "2.5", b.Human.String())
}

func txResult(t *testing.T, vault, beneficiary solana.PublicKey, vaultPre, vaultPost, benPost uint64) *rpc.GetTransactionResult {
	t.Helper()
	payer := solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(vault).WRITE(),
		solana.Meta(beneficiary).WRITE(),
	}, []byte{0})
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{9}, solana.TransactionPayer(payer))
	require.NoError(t, err)
	tx.Signatures = []solana.Signature{{1}}
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	idx := func(k solana.PublicKey) int {
		for i, key := range tx.Message.AccountKeys {
			if key == k {
				return i
			}
		}
		t.Fatalf("key %s not in message", k)
		return -1
	}
	bal := func(k solana.PublicKey, amount uint64) string {
		return fmt.Sprintf(`{"accountIndex":%d,"mint":%q,"uiTokenAmount":{"amount":"%d","decimals":6,"uiAmountString":""}}`, idx(k), mint.String(), amount)
	}
	body := fmt.Sprintf(`{"slot":10,"transaction":[%q,"base64"],"meta":{"err":null,"fee":5000,"preBalances":[],"postBalances":[],"preTokenBalances":[%s],"postTokenBalances":[%s,%s],"loadedAddresses":{"writable":[],"readonly":[]}}}`,
		base64.StdEncoding.EncodeToString(raw),
		bal(vault, vaultPre),
		bal(vault, vaultPost), bal(beneficiary, benPost),
	)
	var res rpc.GetTransactionResult
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	return &res
}

func TestTransferHistory(t *testing.T) {
	r, l := newReader(t)
	vault := solana.NewWallet().PublicKey()
	ben := solana.NewWallet().PublicKey()

	out := solana.Signature{1}
	deposit := solana.Signature{2}
	older := solana.Signature{3}
	t1, t2, t3 := solana.UnixTimeSeconds(100), solana.UnixTimeSeconds(200), solana.UnixTimeSeconds(50)
	l.Signatures[vault] = []*rpc.TransactionSignature{
		{Signature: deposit, Slot: 20, BlockTime: &t2},
		{Signature: out, Slot: 10, BlockTime: &t1},
		{Signature: older, Slot: 5, BlockTime: &t3},
	}
	l.Transactions[out] = txResult(t, vault, ben, 1000, 700, 300)
	l.Transactions[deposit] = txResult(t, vault, ben, 700, 900, 0)
	l.Transactions[older] = txResult(t, vault, ben, 2000, 1000, 1000)

	got, err := r.TransferHistory(context.Background(), vault, ben, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, out.String(), got[0].Signature)
	require.Equal(t, uint64(300), got[0].Amount)
	require.Equal(t, mint, got[0].Mint)
	require.Equal(t, older.String(), got[1].Signature)
}
