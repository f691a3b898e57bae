// Package priority prices compute units from the fees recently paid for the
// accounts a transaction writes.
package priority

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// Urgency selects the percentile of recent fees to pay.
type Urgency uint8

const (
	UrgencyOff Urgency = iota
	UrgencyLow
	UrgencyMedium
	UrgencyHigh
	UrgencyExtreme
)

// DefaultFees apply when no recent fee was sampled (microLamports per CU).
var DefaultFees = map[Urgency]uint64{
	UrgencyLow:     1_000,
	UrgencyMedium:  10_000,
	UrgencyHigh:    100_000,
	UrgencyExtreme: 1_000_000,
}

const (
	minFee = 100
	// maxAccounts bounds the writable accounts sampled per estimate.
	maxAccounts = 8
	cacheSize   = 256
	cacheTTL    = 10 * time.Second
)

func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return UrgencyOff, nil
	case "low":
		return UrgencyLow, nil
	case "medium":
		return UrgencyMedium, nil
	case "high":
		return UrgencyHigh, nil
	case "extreme":
		return UrgencyExtreme, nil
	}
	return UrgencyOff, fmt.Errorf("unknown priority fee urgency %q", s)
}

func (u Urgency) percentile() int {
	switch u {
	case UrgencyLow:
		return 50
	case UrgencyHigh:
		return 90
	case UrgencyExtreme:
		return 99
	default:
		return 75
	}
}

// FeeSource returns the non-zero prioritization fees recently paid for
// transactions writing any of accounts.
type FeeSource func(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error)

// RPCSource samples fees with getRecentPrioritizationFees.
func RPCSource(client *rpc.Client) FeeSource {
	return func(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error) {
		recent, err := client.GetRecentPrioritizationFees(ctx, accounts)
		if err != nil {
			return nil, err
		}
		fees := make([]uint64, 0, len(recent))
		for _, f := range recent {
			if f.PrioritizationFee > 0 {
				fees = append(fees, f.PrioritizationFee)
			}
		}
		return fees, nil
	}
}

type Calculator struct {
	source  FeeSource
	urgency Urgency
	cache   *lru.LRU[string, uint64]
}

func NewCalculator(source FeeSource, urgency Urgency) *Calculator {
	return &Calculator{
		source:  source,
		urgency: urgency,
		cache:   lru.NewLRU[string, uint64](cacheSize, nil, cacheTTL),
	}
}

// MicroLamports is the compute unit price to attach to a transaction writing
// accounts. Zero means no price instruction. A failed sample falls back to
// the urgency's default.
func (c *Calculator) MicroLamports(ctx context.Context, accounts []solana.PublicKey) uint64 {
	if c == nil || c.urgency == UrgencyOff {
		return 0
	}
	if len(accounts) > maxAccounts {
		accounts = accounts[:maxAccounts]
	}
	key := cacheKey(accounts)
	if fee, ok := c.cache.Get(key); ok {
		return fee
	}

	fees, err := c.source(ctx, accounts)
	if err != nil {
		log.Debug().Err(err).Msg("[PriorityFee] sampling failed, using default")
		return DefaultFees[c.urgency]
	}
	if len(fees) == 0 {
		return DefaultFees[c.urgency]
	}
	fee := max(Percentile(fees, c.urgency.percentile()), minFee)
	c.cache.Add(key, fee)
	return fee
}

func cacheKey(accounts []solana.PublicKey) string {
	var b strings.Builder
	for _, a := range accounts {
		b.Write(a[:])
	}
	return b.String()
}

// Percentile interpolates the p-th percentile of fees.
func Percentile(fees []uint64, p int) uint64 {
	if len(fees) == 0 {
		return 0
	}
	sorted := slices.Clone(fees)
	slices.Sort(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	k := float64(p) / 100 * float64(len(sorted)-1)
	f := int(k)
	c := min(f+1, len(sorted)-1)
	d := k - float64(f)
	return uint64(float64(sorted[f])*(1-d) + float64(sorted[c])*d)
}

// WritableAccounts lists the distinct writable accounts of ixs in order.
func WritableAccounts(ixs []solana.Instruction) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{})
	out := make([]solana.PublicKey, 0, maxAccounts)
	for _, ix := range ixs {
		for _, m := range ix.Accounts() {
			if !m.IsWritable {
				continue
			}
			if _, ok := seen[m.PublicKey]; ok {
				continue
			}
			seen[m.PublicKey] = struct{}{}
			out = append(out, m.PublicKey)
		}
	}
	return out
}
