package domain

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

type PoolType uint8

const (
	PoolTypeUnknown PoolType = iota
	PoolTypeRaydiumV4
	PoolTypeCPMM
)

func (p PoolType) String() string {
	switch p {
	case PoolTypeRaydiumV4:
		return "raydium_v4"
	case PoolTypeCPMM:
		return "cpmm"
	default:
		return "unknown"
	}
}

// PoolRouteDescriptor holds a V4 pool and every satellite account a swap
// through it references, including its OpenBook market.
type PoolRouteDescriptor struct {
	Pool         solana.PublicKey `json:"pool"`
	Program      solana.PublicKey `json:"program"`
	Authority    solana.PublicKey `json:"authority"`
	OpenOrders   solana.PublicKey `json:"openOrders"`
	TargetOrders solana.PublicKey `json:"targetOrders"`
	BaseVault    solana.PublicKey `json:"baseVault"`
	QuoteVault   solana.PublicKey `json:"quoteVault"`
	BaseMint     solana.PublicKey `json:"baseMint"`
	QuoteMint    solana.PublicKey `json:"quoteMint"`
	LPMint       solana.PublicKey `json:"lpMint"`

	MarketProgram     solana.PublicKey `json:"marketProgram"`
	Market            solana.PublicKey `json:"market"`
	MarketBids        solana.PublicKey `json:"marketBids"`
	MarketAsks        solana.PublicKey `json:"marketAsks"`
	MarketEventQueue  solana.PublicKey `json:"marketEventQueue"`
	MarketBaseVault   solana.PublicKey `json:"marketBaseVault"`
	MarketQuoteVault  solana.PublicKey `json:"marketQuoteVault"`
	MarketVaultSigner solana.PublicKey `json:"marketVaultSigner"`
}

// SameAddress compares base58 addresses ignoring case, as pinned pools are
// configured by hand.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CPMMRoute is the account set of one constant-product pool in one direction.
type CPMMRoute struct {
	Program      solana.PublicKey `json:"program"`
	Authority    solana.PublicKey `json:"authority"`
	AmmConfig    solana.PublicKey `json:"ammConfig"`
	ConfigIndex  uint16           `json:"configIndex"`
	Pool         solana.PublicKey `json:"pool"`
	InputMint    solana.PublicKey `json:"inputMint"`
	OutputMint   solana.PublicKey `json:"outputMint"`
	InputVault   solana.PublicKey `json:"inputVault"`
	OutputVault  solana.PublicKey `json:"outputVault"`
	Observation  solana.PublicKey `json:"observation"`
	TokenProgram solana.PublicKey `json:"tokenProgram"`
}
