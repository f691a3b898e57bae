package priority

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestPercentile(t *testing.T) {
	fees := []uint64{400, 100, 300, 200, 500}
	cases := []struct {
		p    int
		want uint64
	}{
		{0, 100},
		{50, 300},
		{75, 400},
		{100, 500},
	}
	for _, tc := range cases {
		if got := Percentile(fees, tc.p); got != tc.want {
			t.Errorf("p%d = %d, want %d", tc.p, got, tc.want)
		}
	}
	if fees[0] != 400 {
		t.Fatal("input was reordered")
	}
}

func TestParseUrgency(t *testing.T) {
	for in, want := range map[string]Urgency{"": UrgencyOff, "off": UrgencyOff, "Medium": UrgencyMedium, " high ": UrgencyHigh} {
		got, err := ParseUrgency(in)
		if err != nil || got != want {
			t.Errorf("ParseUrgency(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseUrgency("urgent"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMicroLamports(t *testing.T) {
	calls := 0
	source := func(context.Context, []solana.PublicKey) ([]uint64, error) {
		calls++
		return []uint64{10, 20, 30}, nil
	}
	accounts := []solana.PublicKey{solana.SystemProgramID}

	if fee := NewCalculator(source, UrgencyOff).MicroLamports(context.Background(), accounts); fee != 0 {
		t.Fatalf("off urgency priced %d", fee)
	}
	if calls != 0 {
		t.Fatal("off urgency sampled fees")
	}

	c := NewCalculator(source, UrgencyMedium)
	if fee := c.MicroLamports(context.Background(), accounts); fee != minFee {
		t.Fatalf("fee = %d, want floor %d", fee, minFee)
	}
	c.MicroLamports(context.Background(), accounts)
	if calls != 1 {
		t.Fatalf("sampled %d times, want cached", calls)
	}

	failing := NewCalculator(func(context.Context, []solana.PublicKey) ([]uint64, error) {
		return nil, errors.New("rpc down")
	}, UrgencyHigh)
	if fee := failing.MicroLamports(context.Background(), accounts); fee != DefaultFees[UrgencyHigh] {
		t.Fatalf("fallback fee = %d", fee)
	}

	var nilCalc *Calculator
	if nilCalc.MicroLamports(context.Background(), accounts) != 0 {
		t.Fatal("nil calculator priced a transaction")
	}
}

func TestWritableAccounts(t *testing.T) {
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	ix := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(a).WRITE(),
		solana.Meta(b),
		solana.Meta(a).WRITE(),
	}, nil)
	got := WritableAccounts([]solana.Instruction{ix, ix})
	if len(got) != 1 || got[0] != a {
		t.Fatalf("writable = %v", got)
	}
}
