// Package units converts between human-denominated decimals and integer base units.
package units

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAmountOverflow = errors.New("amount exceeds u64")
	ErrInvalidAmount  = errors.New("invalid decimal amount")

	maxU64 = decimal.NewFromUint64(math.MaxUint64)
)

// ToBaseUnits truncates human to the fixed fractional precision, shifts it by
// decimals and drops any remaining fraction toward zero.
func ToBaseUnits(human decimal.Decimal, decimals int32) (uint64, error) {
	if human.IsNegative() {
		return 0, ErrNegativeAmount
	}
	base := human.Truncate(common.HumanScale).Shift(decimals).Truncate(0)
	if base.GreaterThan(maxU64) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, human.String())
	}
	return base.BigInt().Uint64(), nil
}

// ToHumanUnits shifts base down by decimals, keeping the fixed precision.
func ToHumanUnits(base uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromUint64(base).Shift(-decimals).Truncate(common.HumanScale)
}

// ParseHuman parses a decimal string as accepted by the API.
func ParseHuman(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	return d, nil
}

// ParseToBase parses s and converts it to base units.
func ParseToBase(s string, decimals int32) (uint64, error) {
	d, err := ParseHuman(s)
	if err != nil {
		return 0, err
	}
	return ToBaseUnits(d, decimals)
}

// Format renders base units with exactly HumanScale fractional digits.
func Format(base uint64, decimals int32) string {
	return ToHumanUnits(base, decimals).StringFixed(common.HumanScale)
}
