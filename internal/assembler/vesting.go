package assembler

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/ledger"
	"github.com/hxuan190/ledger-orchestrator/internal/schema"
	"github.com/hxuan190/ledger-orchestrator/internal/units"
)

type CreateVestingSchedule struct {
	Beneficiary solana.PublicKey `json:"beneficiary"`
	Mint        solana.PublicKey `json:"mint"`
	// TotalAmount is in whole tokens of Mint.
	TotalAmount string `json:"totalAmount"`
	StartTime   int64  `json:"startTime"`
	// Period is daily, monthly, yearly or linear; monthly when empty.
	Period      string `json:"period"`
	PeriodCount uint32 `json:"periodCount"`
}

// CreateVestingSchedule locks TotalAmount of the creator's tokens for the
// beneficiary.
func (a *Assembler) CreateVestingSchedule(ctx context.Context, session *domain.Session, p CreateVestingSchedule) (*domain.Plan, error) {
	const kind = domain.OpCreateVestingSchedule
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	if p.Beneficiary.IsZero() || p.Mint.IsZero() {
		return nil, invalid(kind, "beneficiary and mint are required")
	}
	if p.PeriodCount == 0 {
		return nil, invalid(kind, "periodCount must be positive")
	}
	period := domain.VestingMonthly
	if p.Period != "" {
		if period, err = domain.ParseVestingPeriod(p.Period); err != nil {
			return nil, invalid(kind, "%v", err)
		}
	}

	decimals, err := a.reader.MintDecimals(ctx, p.Mint)
	if err != nil {
		return nil, prerequisite(kind, "mint", err)
	}
	total, err := units.ParseToBase(p.TotalAmount, int32(decimals))
	if err != nil {
		return nil, invalid(kind, "totalAmount: %v", err)
	}
	if total == 0 {
		return nil, invalid(kind, "totalAmount must be positive")
	}
	balance, err := a.reader.TokenBalance(ctx, d.user, p.Mint)
	if err != nil {
		return nil, err
	}
	if !balance.Exists || balance.Amount < total {
		return nil, insufficient(kind, balance.Account, "have %d, need %d", balance.Amount, total)
	}

	schedule := d.pda(a.vesting().Schedule(d.user, p.Beneficiary, p.Mint))
	if d.err != nil {
		return nil, d.err
	}
	state, err := a.reader.Exists(ctx, schedule)
	if err != nil {
		return nil, err
	}
	if state == ledger.Exists {
		return nil, common.NewOperationError(string(kind), schedule,
			fmt.Errorf("%w: schedule already exists", common.ErrInvalidParams))
	}

	d.add(schema.Vesting, "createVestingSchedule", schema.Accounts{
		"creator":             d.user,
		"beneficiary":         p.Beneficiary,
		"mint":                p.Mint,
		"creatorTokenAccount": balance.Account,
		"vaultTokenAccount":   d.ensure(schedule, p.Mint),
		"vestingSchedule":     schedule,
	}, total, p.StartTime, period.String(), p.PeriodCount)

	return d.finish(ctx, &domain.Plan{Target: schedule})
}

type ClaimVested struct {
	Creator solana.PublicKey `json:"creator"`
	Mint    solana.PublicKey `json:"mint"`
}

// ClaimVested releases whatever the schedule has vested so far to the
// beneficiary.
func (a *Assembler) ClaimVested(ctx context.Context, session *domain.Session, p ClaimVested) (*domain.Plan, error) {
	const kind = domain.OpClaimVested
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	if p.Creator.IsZero() || p.Mint.IsZero() {
		return nil, invalid(kind, "creator and mint are required")
	}

	schedule := d.pda(a.vesting().Schedule(p.Creator, d.user, p.Mint))
	if d.err != nil {
		return nil, d.err
	}
	rec, err := a.reader.VestingSchedule(ctx, schedule)
	if err != nil {
		return nil, prerequisite(kind, "vesting schedule", err)
	}
	if rec.Record.Claimable(a.now().Unix()) == 0 {
		return nil, common.NewOperationError(string(kind), schedule,
			fmt.Errorf("%w: nothing vested to claim", common.ErrInvalidParams))
	}

	d.add(schema.Vesting, "claim", schema.Accounts{
		"beneficiary":             d.user,
		"vestingSchedule":         schedule,
		"vaultTokenAccount":       d.ensure(schedule, p.Mint),
		"beneficiaryTokenAccount": d.ensure(d.user, p.Mint),
	})

	return d.finish(ctx, &domain.Plan{Target: schedule})
}

type CancelVesting struct {
	Beneficiary solana.PublicKey `json:"beneficiary"`
	Mint        solana.PublicKey `json:"mint"`
}

// CancelVesting returns the unvested balance to the creator.
func (a *Assembler) CancelVesting(ctx context.Context, session *domain.Session, p CancelVesting) (*domain.Plan, error) {
	const kind = domain.OpCancelVesting
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	if p.Beneficiary.IsZero() || p.Mint.IsZero() {
		return nil, invalid(kind, "beneficiary and mint are required")
	}

	schedule := d.pda(a.vesting().Schedule(d.user, p.Beneficiary, p.Mint))
	if d.err != nil {
		return nil, d.err
	}
	if _, err := a.reader.VestingSchedule(ctx, schedule); err != nil {
		return nil, prerequisite(kind, "vesting schedule", err)
	}

	d.add(schema.Vesting, "cancelVesting", schema.Accounts{
		"creator":             d.user,
		"vestingSchedule":     schedule,
		"vaultTokenAccount":   d.ata(schedule, p.Mint),
		"creatorTokenAccount": d.ensure(d.user, p.Mint),
	})

	return d.finish(ctx, &domain.Plan{Target: schedule})
}
