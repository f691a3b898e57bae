package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

type VestingPeriod uint8

const (
	VestingDaily VestingPeriod = iota
	VestingMonthly
	VestingYearly
	VestingLinear
)

const secondsPerDay = 24 * 60 * 60

func (p VestingPeriod) Seconds() int64 {
	switch p {
	case VestingDaily:
		return secondsPerDay
	case VestingMonthly:
		return 30 * secondsPerDay
	case VestingYearly:
		return 365 * secondsPerDay
	default:
		return 1
	}
}

func (p VestingPeriod) String() string {
	switch p {
	case VestingDaily:
		return "daily"
	case VestingMonthly:
		return "monthly"
	case VestingYearly:
		return "yearly"
	case VestingLinear:
		return "linear"
	}
	return fmt.Sprintf("VestingPeriod(%d)", uint8(p))
}

func ParseVestingPeriod(s string) (VestingPeriod, error) {
	switch s {
	case "daily", "Daily":
		return VestingDaily, nil
	case "monthly", "Monthly":
		return VestingMonthly, nil
	case "yearly", "Yearly":
		return VestingYearly, nil
	case "linear", "Linear":
		return VestingLinear, nil
	}
	return 0, fmt.Errorf("unknown vesting period %q", s)
}

func (p VestingPeriod) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

type VestingSchedule struct {
	Creator         solana.PublicKey `json:"creator"`
	Beneficiary     solana.PublicKey `json:"beneficiary"`
	Mint            solana.PublicKey `json:"mint"`
	TotalAmount     uint64           `json:"totalAmount"`
	ClaimedAmount   uint64           `json:"claimedAmount"`
	StartTime       int64            `json:"startTime"`
	VestingPeriod   VestingPeriod    `json:"vestingPeriod"`
	PeriodCount     uint32           `json:"periodCount"`
	AmountPerPeriod uint64           `json:"amountPerPeriod"`
	CreatedAt       int64            `json:"createdAt"`
}

func (s *VestingSchedule) TotalDuration() int64 {
	return s.VestingPeriod.Seconds() * int64(s.PeriodCount)
}

func (s *VestingSchedule) CompletedPeriods(now int64) uint32 {
	if now < s.StartTime {
		return 0
	}
	completed := (now - s.StartTime) / s.VestingPeriod.Seconds()
	if completed > int64(s.PeriodCount) {
		return s.PeriodCount
	}
	return uint32(completed)
}

// Vested is the amount released by now, claimed or not. Periodic schedules
// release whole periods only and never exceed the total.
func (s *VestingSchedule) Vested(now int64) uint64 {
	if now < s.StartTime {
		return 0
	}
	if s.VestingPeriod == VestingLinear {
		elapsed := now - s.StartTime
		duration := s.TotalDuration()
		if elapsed >= duration {
			return s.TotalAmount
		}
		return mulDiv(s.TotalAmount, uint64(elapsed), uint64(duration))
	}

	vested := new(uint256.Int).Mul(
		uint256.NewInt(uint64(s.CompletedPeriods(now))),
		uint256.NewInt(s.AmountPerPeriod),
	)
	total := uint256.NewInt(s.TotalAmount)
	if vested.Gt(total) {
		return s.TotalAmount
	}
	return vested.Uint64()
}

func (s *VestingSchedule) Claimable(now int64) uint64 {
	vested := s.Vested(now)
	if vested <= s.ClaimedAmount {
		return 0
	}
	return vested - s.ClaimedAmount
}

func (s *VestingSchedule) Locked(now int64) uint64 {
	released := s.ClaimedAmount + s.Claimable(now)
	if released >= s.TotalAmount {
		return 0
	}
	return s.TotalAmount - released
}

func (s *VestingSchedule) IsFullyVested(now int64) bool {
	if s.VestingPeriod == VestingLinear {
		return now >= s.StartTime+s.TotalDuration()
	}
	return s.CompletedPeriods(now) >= s.PeriodCount
}

// Progress is the release percentage in [0, 100].
func (s *VestingSchedule) Progress(now int64) uint8 {
	if now < s.StartTime {
		return 0
	}
	if s.IsFullyVested(now) {
		return 100
	}
	var p uint64
	if s.VestingPeriod == VestingLinear {
		p = mulDiv(uint64(now-s.StartTime), 100, uint64(s.TotalDuration()))
	} else {
		p = mulDiv(uint64(s.CompletedPeriods(now)), 100, uint64(s.PeriodCount))
	}
	if p > 100 {
		p = 100
	}
	return uint8(p)
}

// NextReleaseTime is the start of the next period boundary. Linear and
// fully vested schedules have none.
func (s *VestingSchedule) NextReleaseTime(now int64) (int64, bool) {
	if s.IsFullyVested(now) || s.VestingPeriod == VestingLinear {
		return 0, false
	}
	next := int64(s.CompletedPeriods(now)) + 1
	return s.StartTime + next*s.VestingPeriod.Seconds(), true
}

// VestingView is the read model returned to clients.
type VestingView struct {
	Address         solana.PublicKey `json:"address"`
	Schedule        VestingSchedule  `json:"schedule"`
	Claimable       uint64           `json:"claimable"`
	Locked          uint64           `json:"locked"`
	Progress        uint8            `json:"progress"`
	FullyVested     bool             `json:"fullyVested"`
	NextReleaseTime *int64           `json:"nextReleaseTime,omitempty"`
}

func NewVestingView(addr solana.PublicKey, s VestingSchedule, now int64) VestingView {
	v := VestingView{
		Address:     addr,
		Schedule:    s,
		Claimable:   s.Claimable(now),
		Locked:      s.Locked(now),
		Progress:    s.Progress(now),
		FullyVested: s.IsFullyVested(now),
	}
	if t, ok := s.NextReleaseTime(now); ok {
		v.NextReleaseTime = &t
	}
	return v
}

// mulDiv computes a*b/d without intermediate overflow. d == 0 yields 0.
func mulDiv(a, b, d uint64) uint64 {
	if d == 0 {
		return 0
	}
	x := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	x.Div(x, uint256.NewInt(d))
	if !x.IsUint64() {
		return ^uint64(0)
	}
	return x.Uint64()
}
