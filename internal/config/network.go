package config

import (
	"fmt"
	"os"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"

	internalcommon "github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/priority"
)

// NetworkConfig holds the token mints, pools and fixed accounts the
// operations route value through.
type NetworkConfig struct {
	USDTMint     solana.PublicKey
	GDTCMint     solana.PublicKey
	BIOMint      solana.PublicKey
	LPMint       solana.PublicKey
	USDTDecimals int32

	Superior  solana.PublicKey
	BlackHole solana.PublicKey

	RaydiumV4Program solana.PublicKey
	CPSwapProgram    solana.PublicKey

	// Optional overrides of the program ids carried by the embedded schemas.
	CrowdfundingProgram solana.PublicKey
	NFTProgram          solana.PublicKey
	StakingProgram      solana.PublicKey
	VestingProgram      solana.PublicKey

	// USDT/WSOL and WSOL/GDTC V4 pools; both are pinned.
	USDTPool solana.PublicKey
	GDTCPool solana.PublicKey
	// GDTC/BIO constant-product pool.
	BIOPool solana.PublicKey

	AmmConfigScanLimit int
	ComputeUnitLimit   uint32
	// PriorityFee is the urgency compute units are priced at; off attaches no price.
	PriorityFee priority.Urgency

	// PinnedPoolsFile optionally holds the satellite accounts of the pinned pools.
	PinnedPoolsFile string
}

func (n *NetworkConfig) Key() string {
	return NETWORK_CONFIG_KEY
}

func (n *NetworkConfig) Load() error {
	var err error
	keys := []struct {
		env      string
		dst      *solana.PublicKey
		fallback solana.PublicKey
	}{
		{"USDT_TOKEN_MINT", &n.USDTMint, solana.PublicKey{}},
		{"GDTC_TOKEN_MINT", &n.GDTCMint, solana.PublicKey{}},
		{"BIONEO_TOKEN_MINT", &n.BIOMint, solana.PublicKey{}},
		{"LP_TOKEN_MINT", &n.LPMint, solana.PublicKey{}},
		{"SUPERIOR_ADDRESS", &n.Superior, solana.PublicKey{}},
		{"BLACK_HOLE_ADDRESS", &n.BlackHole, internalcommon.DefaultBlackHoleOwner},
		{"RAYDIUM_V4_PROGRAM_ID", &n.RaydiumV4Program, internalcommon.DefaultRaydiumV4ID},
		{"CP_SWAP_PROGRAM_ID", &n.CPSwapProgram, internalcommon.DefaultCPSwapID},
		{"CROWDFUNDING_PROGRAM_ID", &n.CrowdfundingProgram, solana.PublicKey{}},
		{"NFT_PROGRAM_ID", &n.NFTProgram, solana.PublicKey{}},
		{"STAKING_PROGRAM_ID", &n.StakingProgram, solana.PublicKey{}},
		{"VESTING_PROGRAM_ID", &n.VestingProgram, solana.PublicKey{}},
		{"POOL_ADDRESS", &n.USDTPool, solana.PublicKey{}},
		{"GDTC_POOL_ADDRESS", &n.GDTCPool, solana.PublicKey{}},
		{"BIONEO_POOL_ADDRESS", &n.BIOPool, solana.PublicKey{}},
	}
	for _, k := range keys {
		raw := os.Getenv(k.env)
		if raw == "" {
			*k.dst = k.fallback
			continue
		}
		if *k.dst, err = solana.PublicKeyFromBase58(raw); err != nil {
			return fmt.Errorf("invalid %s: %w", k.env, err)
		}
	}

	n.USDTDecimals = int32(common.GetEnvOrDefaultInt("USDT_DECIMALS", 6))
	n.AmmConfigScanLimit = common.GetEnvOrDefaultInt("AMM_CONFIG_SCAN_LIMIT", 50)
	n.ComputeUnitLimit = uint32(common.GetEnvOrDefaultInt("COMPUTE_UNIT_LIMIT", internalcommon.DefaultComputeUnitLimit))
	n.PinnedPoolsFile = os.Getenv("PINNED_POOLS_FILE")
	if n.PriorityFee, err = priority.ParseUrgency(os.Getenv("PRIORITY_FEE")); err != nil {
		return err
	}
	return n.Validate()
}

func (n *NetworkConfig) Validate() error {
	required := map[string]solana.PublicKey{
		"USDT_TOKEN_MINT":     n.USDTMint,
		"GDTC_TOKEN_MINT":     n.GDTCMint,
		"BIONEO_TOKEN_MINT":   n.BIOMint,
		"POOL_ADDRESS":        n.USDTPool,
		"GDTC_POOL_ADDRESS":   n.GDTCPool,
		"BIONEO_POOL_ADDRESS": n.BIOPool,
	}
	for name, v := range required {
		if v.IsZero() {
			return fmt.Errorf("%s is required", name)
		}
	}
	if n.AmmConfigScanLimit <= 0 || n.AmmConfigScanLimit > 1<<16 {
		return fmt.Errorf("AMM_CONFIG_SCAN_LIMIT out of range")
	}
	return nil
}
