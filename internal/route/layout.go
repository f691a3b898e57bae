package route

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	AmmInfoV4Size     = 752
	MarketStateV3Size = 388
)

// AmmInfoV4 is the Raydium liquidity pool state (LIQUIDITY_STATE_LAYOUT_V4).
type AmmInfoV4 struct {
	Status                 uint64
	Nonce                  uint64
	MaxOrder               uint64
	Depth                  uint64
	BaseDecimal            uint64
	QuoteDecimal           uint64
	State                  uint64
	ResetFlag              uint64
	MinSize                uint64
	VolMaxCutRatio         uint64
	AmountWaveRatio        uint64
	BaseLotSize            uint64
	QuoteLotSize           uint64
	MinPriceMultiplier     uint64
	MaxPriceMultiplier     uint64
	SystemDecimalValue     uint64
	MinSeparateNumerator   uint64
	MinSeparateDenominator uint64
	TradeFeeNumerator      uint64
	TradeFeeDenominator    uint64
	PnlNumerator           uint64
	PnlDenominator         uint64
	SwapFeeNumerator       uint64
	SwapFeeDenominator     uint64
	BaseNeedTakePnl        uint64
	QuoteNeedTakePnl       uint64
	QuoteTotalPnl          uint64
	BaseTotalPnl           uint64
	PoolOpenTime           uint64
	PunishPcAmount         uint64
	PunishCoinAmount       uint64
	OrderbookToInitTime    uint64

	SwapBaseInAmount   bin.Uint128
	SwapQuoteOutAmount bin.Uint128
	SwapBase2QuoteFee  uint64
	SwapQuoteInAmount  bin.Uint128
	SwapBaseOutAmount  bin.Uint128
	SwapQuote2BaseFee  uint64

	BaseVault       solana.PublicKey
	QuoteVault      solana.PublicKey
	BaseMint        solana.PublicKey
	QuoteMint       solana.PublicKey
	LpMint          solana.PublicKey
	OpenOrders      solana.PublicKey
	MarketID        solana.PublicKey
	MarketProgramID solana.PublicKey
	TargetOrders    solana.PublicKey
	WithdrawQueue   solana.PublicKey
	LpVault         solana.PublicKey
	Owner           solana.PublicKey
	LpReserve       uint64
	Padding         [3]uint64
}

// MarketStateV3 is the OpenBook/Serum market header (MARKET_STATE_LAYOUT_V3).
type MarketStateV3 struct {
	Head                   [5]byte
	AccountFlags           uint64
	OwnAddress             solana.PublicKey
	VaultSignerNonce       uint64
	BaseMint               solana.PublicKey
	QuoteMint              solana.PublicKey
	BaseVault              solana.PublicKey
	BaseDepositsTotal      uint64
	BaseFeesAccrued        uint64
	QuoteVault             solana.PublicKey
	QuoteDepositsTotal     uint64
	QuoteFeesAccrued       uint64
	QuoteDustThreshold     uint64
	RequestQueue           solana.PublicKey
	EventQueue             solana.PublicKey
	Bids                   solana.PublicKey
	Asks                   solana.PublicKey
	BaseLotSize            uint64
	QuoteLotSize           uint64
	FeeRateBps             uint64
	ReferrerRebatesAccrued uint64
	Tail                   [7]byte
}

func decodeAmmInfoV4(data []byte) (*AmmInfoV4, error) {
	if len(data) < AmmInfoV4Size {
		return nil, fmt.Errorf("pool state is %d bytes, want %d", len(data), AmmInfoV4Size)
	}
	var info AmmInfoV4
	if err := bin.NewBinDecoder(data[:AmmInfoV4Size]).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode pool state: %w", err)
	}
	return &info, nil
}

func decodeMarketStateV3(data []byte) (*MarketStateV3, error) {
	if len(data) < MarketStateV3Size {
		return nil, fmt.Errorf("market state is %d bytes, want %d", len(data), MarketStateV3Size)
	}
	var m MarketStateV3
	if err := bin.NewBinDecoder(data[:MarketStateV3Size]).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode market state: %w", err)
	}
	return &m, nil
}
