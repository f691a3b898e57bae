package derive

import (
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

func address(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := Find(seeds, program)
	return addr, err
}

type Crowdfunding struct {
	Program solana.PublicKey
}

func (p Crowdfunding) Instance() (solana.PublicKey, error) {
	return address(p.Program, []byte("crowdfunding_instance"))
}

func (p Crowdfunding) SalePhase(phaseID uint64) (solana.PublicKey, error) {
	return address(p.Program, []byte("sale_phase"), U64LE(phaseID))
}

// UserPurchase is keyed by the phase's sold-share counter at purchase time.
func (p Crowdfunding) UserPurchase(user solana.PublicKey, phaseID, soldShares uint64) (solana.PublicKey, error) {
	return address(p.Program, []byte("user_purchase"), user[:], U64LE(phaseID), U64LE(soldShares))
}

type NFTMining struct {
	Program solana.PublicKey
}

func (p NFTMining) System() (solana.PublicKey, error) {
	return address(p.Program, []byte("nft_mining_system"))
}

func (p NFTMining) OrderInfo(index uint64) (solana.PublicKey, error) {
	return address(p.Program, []byte("order_info"), U64LE(index))
}

type Staking struct {
	Program solana.PublicKey
}

func (p Staking) Instance() (solana.PublicKey, error) {
	return address(p.Program, []byte("staking_instance"))
}

func (p Staking) User(authority solana.PublicKey) (solana.PublicKey, error) {
	return address(p.Program, []byte("user"), authority[:])
}

type Vesting struct {
	Program solana.PublicKey
}

func (p Vesting) Schedule(creator, beneficiary, mint solana.PublicKey) (solana.PublicKey, error) {
	return address(p.Program, []byte("vesting"), creator[:], beneficiary[:], mint[:])
}

// Vault is the schedule-owned token account holding the locked balance.
func (p Vesting) Vault(schedule, mint solana.PublicKey) (solana.PublicKey, error) {
	return AssociatedTokenAddress(schedule, mint)
}

type RaydiumV4 struct {
	Program solana.PublicKey
}

func (p RaydiumV4) Authority() (solana.PublicKey, error) {
	return address(p.Program, []byte("amm authority"))
}

// VaultSigner derives the OpenBook market authority. The nonce is stored in
// the market itself, so no bump search is done.
func VaultSigner(market solana.PublicKey, nonce uint64, marketProgram solana.PublicKey) (solana.PublicKey, error) {
	return Create([][]byte{market[:], U64LE(nonce)}, marketProgram)
}

type CPMM struct {
	Program solana.PublicKey
}

func (p CPMM) Authority() (solana.PublicKey, error) {
	return address(p.Program, []byte("vault_and_lp_mint_auth_seed"))
}

func (p CPMM) AmmConfig(index uint16) (solana.PublicKey, error) {
	return address(p.Program, []byte("amm_config"), U16BE(index))
}

func (p CPMM) Pool(config, mint0, mint1 solana.PublicKey) (solana.PublicKey, error) {
	return address(p.Program, []byte("pool"), config[:], mint0[:], mint1[:])
}

func (p CPMM) Vault(pool, mint solana.PublicKey) (solana.PublicKey, error) {
	return address(p.Program, []byte("pool_vault"), pool[:], mint[:])
}

func (p CPMM) Observation(pool solana.PublicKey) (solana.PublicKey, error) {
	return address(p.Program, []byte("observation"), pool[:])
}

// LookupTable derives the table created by authority at recentSlot.
func LookupTable(authority solana.PublicKey, recentSlot uint64) (solana.PublicKey, uint8, error) {
	return Find([][]byte{authority[:], U64LE(recentSlot)}, common.AddressLookupTableID)
}
