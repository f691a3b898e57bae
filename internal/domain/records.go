package domain

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// Discriminator is the 8-byte prefix of an anchor account or instruction.
type Discriminator [8]byte

func AccountDiscriminator(name string) Discriminator {
	return hashDiscriminator("account:" + name)
}

func InstructionDiscriminator(snakeName string) Discriminator {
	return hashDiscriminator("global:" + snakeName)
}

func hashDiscriminator(preimage string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte(preimage))
	copy(d[:], sum[:8])
	return d
}

// RecordKind names an account layout and its discriminator.
type RecordKind string

const (
	KindCrowdfundingInfo RecordKind = "CrowdfundingInfo"
	KindSalePhase        RecordKind = "SalePhase"
	KindUserPurchase     RecordKind = "UserPurchase"
	KindNftMiningSystem  RecordKind = "NftMiningSystem"
	KindOrderInfo        RecordKind = "OrderInfo"
	KindStakingInstance  RecordKind = "StakingInstance"
	KindStakingUser      RecordKind = "User"
	KindVestingSchedule  RecordKind = "VestingSchedule"
)

func (k RecordKind) Discriminator() Discriminator {
	return AccountDiscriminator(string(k))
}

type CrowdfundingInfo struct {
	Initialized          bool             `json:"initialized"`
	Authority            solana.PublicKey `json:"authority"`
	Admin                solana.PublicKey `json:"admin"`
	USDTMint             solana.PublicKey `json:"usdtMint"`
	WSOLMint             solana.PublicKey `json:"wsolMint"`
	GDTCMint             solana.PublicKey `json:"gdtcMint"`
	BIOMint              solana.PublicKey `json:"bioMint"`
	TotalShares          uint64           `json:"totalShares"`
	SoldShares           uint64           `json:"soldShares"`
	TokenPerShare        uint64           `json:"tokenPerShare"`
	VestingDays          uint64           `json:"vestingDays"`
	ProjectSigner        solana.PublicKey `json:"projectSigner"`
	PhaseCount           uint32           `json:"phaseCount"`
	GDTCPoolAddress      solana.PublicKey `json:"gdtcPoolAddress"`
	GDTCBlackholeAddress solana.PublicKey `json:"gdtcBlackholeAddress"`
}

type SalePhase struct {
	PhaseID       uint32 `json:"phaseId"`
	PricePerShare uint64 `json:"pricePerShare"`
	MaxShares     uint64 `json:"maxShares"`
	SoldShares    uint64 `json:"soldShares"`
	StartTime     int64  `json:"startTime"`
	EndTime       int64  `json:"endTime"`
	Active        bool   `json:"active"`
}

type UserPurchase struct {
	User            solana.PublicKey `json:"user"`
	SuperiorAddress solana.PublicKey `json:"superiorAddress"`
	PhaseID         uint32           `json:"phaseId"`
	PurchaseID      uint64           `json:"purchaseId"`
	Shares          uint64           `json:"shares"`
	TokenAmount     uint64           `json:"tokenAmount"`
	ClaimedAmount   uint64           `json:"claimedAmount"`
	PurchaseTime    int64            `json:"purchaseTime"`
	VestingDays     uint64           `json:"vestingDays"`
	WSOLAmount      uint64           `json:"wsolAmount"`
	GDTCAmount      uint64           `json:"gdtcAmount"`
	BurnGDTC        bool             `json:"burnGdtc"`
	RemainingGDTC   uint64           `json:"remainingGdtc"`
	BIOAmount       uint64           `json:"bioAmount"`
	BurnBIO         bool             `json:"burnBio"`
}

// Claimable follows the release used by the purchase list: whole days since
// purchase minus one, over the vesting days, times the token amount, less
// what was already claimed. Never negative.
func (p *UserPurchase) Claimable(now int64) uint64 {
	if p.VestingDays == 0 || now <= p.PurchaseTime {
		return 0
	}
	days := (now-p.PurchaseTime)/86400 - 1
	if days <= 0 {
		return 0
	}
	if uint64(days) > p.VestingDays {
		days = int64(p.VestingDays)
	}
	vested := mulDiv(p.TokenAmount, uint64(days), p.VestingDays)
	if vested <= p.ClaimedAmount {
		return 0
	}
	return vested - p.ClaimedAmount
}

type StakingPool struct {
	RewardTokenPerSec         uint64 `json:"rewardTokenPerSec"`
	AccumulatedRewardPerShare uint64 `json:"accumulatedRewardPerShare"`
	LastRewardTimestamp       uint64 `json:"lastRewardTimestamp"`
	TotalShares               uint64 `json:"totalShares"`
}

type NftMiningSystem struct {
	Authority         solana.PublicKey `json:"authority"`
	IsInitialized     bool             `json:"isInitialized"`
	USDTMint          solana.PublicKey `json:"usdtMint"`
	WSOLMint          solana.PublicKey `json:"wsolMint"`
	GDTCMint          solana.PublicKey `json:"gdtcMint"`
	BIOMint           solana.PublicKey `json:"bioMint"`
	PoolAddress       solana.PublicKey `json:"poolAddress"`
	MarketPoolAddress solana.PublicKey `json:"marketPoolAddress"`
	BlackHoleAddress  solana.PublicKey `json:"blackHoleAddress"`
	Admin             solana.PublicKey `json:"admin"`
	TotalSupply       uint64           `json:"totalSupply"`
	DailyOutput       uint64           `json:"dailyOutput"`
	StartTimestamp    uint64           `json:"startTimestamp"`
	Pool              StakingPool      `json:"pool"`
	OrderInfoIndex    uint64           `json:"orderInfoIndex"`
}

type OrderInfo struct {
	UserAddress         solana.PublicKey `json:"userAddress"`
	OrderInfoIndex      uint64           `json:"orderInfoIndex"`
	UserSuperiorAccount solana.PublicKey `json:"userSuperiorAccount"`
	TotalPower          uint64           `json:"totalPower"`
	AccumulatedReward   uint64           `json:"accumulatedReward"`
	LastClaimTimestamp  uint64           `json:"lastClaimTimestamp"`
	InvestmentAmount    uint64           `json:"investmentAmount"`
	IsTransferUSDT      bool             `json:"isTransferUsdt"`
	TransferWSOLAmount  uint64           `json:"transferWsolAmount"`
	IsInit              bool             `json:"isInit"`
	StakeStartTime      uint64           `json:"stakeStartTime"`
	RewardDebt          uint64           `json:"rewardDebt"`
	IsStaked            bool             `json:"isStaked"`
	ReceivedReward      uint64           `json:"receivedReward"`
	GDTCAmount          uint64           `json:"gdtcAmount"`
	BurnGDTC            bool             `json:"burnGdtc"`
	RemainingGDTC       uint64           `json:"remainingGdtc"`
	BIOAmount           uint64           `json:"bioAmount"`
	BurnBIO             bool             `json:"burnBio"`
	IsNFTMinted         bool             `json:"isNftMinted"`
	NFTMintedTime       uint64           `json:"nftMintedTime"`
	NFTMintAddress      solana.PublicKey `json:"nftMintAddress"`
}

type LPStakingPool struct {
	StakeType                 uint8  `json:"stakeType"`
	RewardTokenPerSec         uint64 `json:"rewardTokenPerSec"`
	AccumulatedRewardPerShare uint64 `json:"accumulatedRewardPerShare"`
	LastRewardTimestamp       uint64 `json:"lastRewardTimestamp"`
	TotalShares               uint64 `json:"totalShares"`
}

type StakingInstance struct {
	Authority             solana.PublicKey `json:"authority"`
	IsInitialized         bool             `json:"isInitialized"`
	RewardTokenMint       solana.PublicKey `json:"rewardTokenMint"`
	StakingTokenMint      solana.PublicKey `json:"stakingTokenMint"`
	SecondRewardTokenMint solana.PublicKey `json:"secondRewardTokenMint"`
	Pools                 [3]LPStakingPool `json:"pools"`
	GDTCPoolAddress       solana.PublicKey `json:"gdtcPoolAddress"`
}

const MaxStakedSlots = 10

type StakedInfo struct {
	DepositedAmount   uint64 `json:"depositedAmount"`
	RewardDebt        uint64 `json:"rewardDebt"`
	AccumulatedReward uint64 `json:"accumulatedReward"`
	IsStaked          bool   `json:"isStaked"`
	StakeType         uint64 `json:"stakeType"`
	StakeStartTime    uint64 `json:"stakeStartTime"`
	StakeEndTime      uint64 `json:"stakeEndTime"`
	ReceivedReward    uint64 `json:"receivedReward"`
	CanCancelStake    bool   `json:"canCancelStake"`
}

type StakingUser struct {
	TotalDepositedAmount uint64                     `json:"totalDepositedAmount"`
	UserSuperiorAccount  solana.PublicKey           `json:"userSuperiorAccount"`
	StakedInfo           [MaxStakedSlots]StakedInfo `json:"stakedInfo"`
	IsInit               bool                       `json:"isInit"`
	UserAddress          solana.PublicKey           `json:"userAddress"`
}

// FreeSlot returns the first staking slot not in use.
func (u *StakingUser) FreeSlot() (uint64, bool) {
	for i, s := range u.StakedInfo {
		if !s.IsStaked {
			return uint64(i), true
		}
	}
	return 0, false
}

// Keyed pairs a decoded record with its account address.
type Keyed[T any] struct {
	Address solana.PublicKey `json:"address"`
	Record  T                `json:"record"`
}
