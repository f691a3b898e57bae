package units

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int32
		want     uint64
	}{
		{"1", 6, 1_000_000},
		{"0.5", 9, 500_000_000},
		{"12.3456789", 6, 12_345_678},
		{"0.0000000019", 9, 1},
		{"0.00000000099", 12, 0},
		{"656.25", 9, 656_250_000_000},
		{"0", 9, 0},
	}
	for _, tt := range tests {
		got, err := ToBaseUnits(decimal.RequireFromString(tt.in), tt.decimals)
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ToBaseUnits(%s, %d) = %d, want %d", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestToBaseUnitsRejects(t *testing.T) {
	if _, err := ToBaseUnits(decimal.NewFromInt(-1), 6); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("negative: %v", err)
	}
	huge := decimal.NewFromUint64(math.MaxUint64).Add(decimal.NewFromInt(1))
	if _, err := ToBaseUnits(huge, 0); !errors.Is(err, ErrAmountOverflow) {
		t.Errorf("overflow: %v", err)
	}
	if _, err := ParseHuman("1.2.3"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("parse: %v", err)
	}
}

func TestToHumanUnits(t *testing.T) {
	if got := ToHumanUnits(1_500_000, 6); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("got %s", got)
	}
	if got := Format(300, 0); got != "300.000000000" {
		t.Errorf("Format = %s", got)
	}
}

func TestRoundTripWithinOneUnit(t *testing.T) {
	inputs := []string{"0", "1", "0.1", "3.14159265358979", "123456.789012345678", "0.000001", "99999999.999999999"}
	for _, d := range []int32{0, 2, 6, 9} {
		unit := decimal.New(1, -d)
		for _, in := range inputs {
			x := decimal.RequireFromString(in)
			base, err := ToBaseUnits(x, d)
			if err != nil {
				t.Fatalf("%s/%d: %v", in, d, err)
			}
			back := ToHumanUnits(base, d)
			if x.Sub(back).Abs().GreaterThan(unit) {
				t.Errorf("round trip %s at %d decimals gave %s", in, d, back)
			}
		}
	}
}

func BenchmarkToBaseUnits(b *testing.B) {
	x := decimal.RequireFromString("12345.678901234")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = ToBaseUnits(x, 9)
	}
}
