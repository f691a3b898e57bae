package schema

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

func key(b byte) solana.PublicKey {
	var k solana.PublicKey
	k[0] = b
	k[31] = 0x5A
	return k
}

func devRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Load("dev", map[Program]solana.PublicKey{
		Crowdfunding: key(200),
		Staking:      key(201),
	})
	require.NoError(t, err)
	return r
}

func TestLoadBothSets(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		r, err := Load(env, nil)
		require.NoError(t, err, env)
		require.Equal(t, env, r.Env())
		require.Equal(t, "9YLCGJaks5rLCpthMP8LoqW72yzkuxBGVxRzGK3ACrTc", r.Address(Vesting).String())
	}

	_, err := Load("staging", nil)
	require.Error(t, err)
}

func TestProdNeedsConfiguredAddress(t *testing.T) {
	r, err := Load("prod", nil)
	require.NoError(t, err)
	_, err = r.Instruction(NFTMining, "enterStaking")
	require.ErrorIs(t, err, common.ErrPrerequisiteStateMissing)

	r, err = Load("prod", map[Program]solana.PublicKey{NFTMining: key(9)})
	require.NoError(t, err)
	ix, err := r.Instruction(NFTMining, "enterStaking")
	require.NoError(t, err)
	require.Equal(t, key(9), ix.ProgramID)
}

func TestUnknownInstruction(t *testing.T) {
	r := devRegistry(t)
	_, err := r.Instruction(Vesting, "withdrawAll")
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestSwapGroupIsFlattenedInOrder(t *testing.T) {
	r := devRegistry(t)
	ix, err := r.Instruction(NFTMining, "ammWsolGdtc")
	require.NoError(t, err)

	var names []string
	for _, role := range ix.Roles {
		names = append(names, role.Name)
	}
	require.Equal(t, []string{
		"user", "nftMiningSystem", "orderInfo", "userWsolAccount", "userGdtcAccount", "blackHoleGdtcAccount",
		"swapAccounts.ammProgram", "swapAccounts.amm", "swapAccounts.ammAuthority", "swapAccounts.ammOpenOrders",
		"swapAccounts.ammCoinVault", "swapAccounts.ammPcVault", "swapAccounts.marketProgram", "swapAccounts.market",
		"swapAccounts.marketBids", "swapAccounts.marketAsks", "swapAccounts.marketEventQueue",
		"swapAccounts.marketCoinVault", "swapAccounts.marketPcVault", "swapAccounts.marketVaultSigner",
		"swapAccounts.userTokenSource", "swapAccounts.userTokenDestination", "swapAccounts.userSourceOwner",
		"swapAccounts.tokenProgram", "tokenProgram", "systemProgram",
	}, names)
	require.Equal(t, [8]byte{94, 238, 185, 110, 47, 184, 91, 28}, ix.Discriminator)
}

func TestAuthoredDiscriminatorsFollowAnchor(t *testing.T) {
	r := devRegistry(t)
	cases := map[Program][]string{
		Crowdfunding: {"createPhase", "ammUsdtToWsol", "ammWsolGdtc", "gdtcToBio", "claimTokens"},
		Staking:      {"initializeUser", "enterStaking", "cancelStaking", "claimRewards"},
	}
	for p, names := range cases {
		for _, name := range names {
			ix, err := r.Instruction(p, name)
			require.NoError(t, err)
			require.Equal(t, [8]byte(domain.InstructionDiscriminator(snakeCase(name))), ix.Discriminator, name)
		}
	}
	require.Equal(t, "amm_usdt_to_wsol", snakeCase("ammUsdtToWsol"))
}

func claimAccounts() Accounts {
	return Accounts{
		"beneficiary":             key(1),
		"vestingSchedule":         key(2),
		"vaultTokenAccount":       key(3),
		"beneficiaryTokenAccount": key(4),
	}
}

func TestBuildOrdersAccounts(t *testing.T) {
	r := devRegistry(t)
	ix, err := r.Instruction(Vesting, "claim")
	require.NoError(t, err)

	// map iteration order must not matter
	for i := 0; i < 10; i++ {
		built, err := ix.Build(claimAccounts())
		require.NoError(t, err)
		metas := built.Accounts()
		require.Len(t, metas, 5)
		require.Equal(t, key(1), metas[0].PublicKey)
		require.True(t, metas[0].IsSigner)
		require.True(t, metas[0].IsWritable)
		require.Equal(t, key(4), metas[3].PublicKey)
		require.Equal(t, common.TokenProgramID, metas[4].PublicKey)
		require.False(t, metas[4].IsWritable)
		require.Equal(t, r.Address(Vesting), built.ProgramID())

		data, err := built.Data()
		require.NoError(t, err)
		require.Equal(t, []byte{62, 198, 214, 193, 213, 159, 108, 210}, data)
	}
}

func TestBuildRejectsRoleMismatch(t *testing.T) {
	r := devRegistry(t)
	ix, err := r.Instruction(Vesting, "claim")
	require.NoError(t, err)

	missing := claimAccounts()
	delete(missing, "vaultTokenAccount")
	_, err = ix.Build(missing)
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
	require.Contains(t, err.Error(), "vaultTokenAccount")

	extra := claimAccounts()
	extra["creator"] = key(9)
	_, err = ix.Build(extra)
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
	require.Contains(t, err.Error(), "creator")

	wrongFixed := claimAccounts()
	wrongFixed["tokenProgram"] = key(9)
	_, err = ix.Build(wrongFixed)
	require.ErrorIs(t, err, common.ErrSchemaMismatch)

	sameFixed := claimAccounts()
	sameFixed["tokenProgram"] = common.TokenProgramID
	_, err = ix.Build(sameFixed)
	require.NoError(t, err)
}

func TestEncodeArgs(t *testing.T) {
	r := devRegistry(t)
	ix, err := r.Instruction(Vesting, "createVestingSchedule")
	require.NoError(t, err)

	data, err := ix.Encode(uint64(1_000_000), int64(1_700_000_000), "monthly", uint32(12))
	require.NoError(t, err)
	require.Len(t, data, 8+8+8+1+4)
	require.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:]))
	require.Equal(t, int64(1_700_000_000), int64(binary.LittleEndian.Uint64(data[16:])))
	require.Equal(t, byte(1), data[24])
	require.Equal(t, uint32(12), binary.LittleEndian.Uint32(data[25:]))

	byIndex, err := ix.Encode(uint64(1_000_000), int64(1_700_000_000), uint8(1), uint32(12))
	require.NoError(t, err)
	require.Equal(t, data, byIndex)

	_, err = ix.Encode(uint64(1), int64(1), "weekly", uint32(1))
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
	_, err = ix.Encode(1, int64(1), "daily", uint32(1))
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
	_, err = ix.Encode(uint64(1))
	require.ErrorIs(t, err, common.ErrSchemaMismatch)
}

func TestEncodePubkeyArg(t *testing.T) {
	r := devRegistry(t)
	ix, err := r.Instruction(Crowdfunding, "ammUsdtToWsol")
	require.NoError(t, err)

	superior := key(77)
	data, err := ix.Encode(uint64(3), uint64(2), superior, uint64(1))
	require.NoError(t, err)
	require.Len(t, data, 8+8+8+32+8)
	require.Equal(t, superior[:], data[24:56])
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[56:]))
}

func BenchmarkBuild(b *testing.B) {
	r, err := Load("dev", nil)
	if err != nil {
		b.Fatal(err)
	}
	ix, err := r.Instruction(Vesting, "claim")
	if err != nil {
		b.Fatal(err)
	}
	accounts := claimAccounts()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ix.Build(accounts)
	}
}
