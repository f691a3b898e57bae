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

type InitializeStakingUser struct {
	Superior solana.PublicKey `json:"superior"`
}

func (a *Assembler) InitializeStakingUser(ctx context.Context, session *domain.Session, p InitializeStakingUser) (*domain.Plan, error) {
	const kind = domain.OpInitializeStakingUser
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	superior := superiorOr(p.Superior, a.cfg.Superior)
	if superior.IsZero() {
		return nil, invalid(kind, "no superior address")
	}

	inst, err := a.reader.StakingInstance(ctx)
	if err != nil {
		return nil, prerequisite(kind, "staking instance", err)
	}
	userInstance := d.pda(a.staking().User(d.user))
	if d.err != nil {
		return nil, d.err
	}
	state, err := a.reader.Exists(ctx, userInstance)
	if err != nil {
		return nil, err
	}
	if state == ledger.Exists {
		return nil, common.NewOperationError(string(kind), userInstance,
			fmt.Errorf("%w: staking user already initialized", common.ErrInvalidParams))
	}

	d.add(schema.Staking, "initializeUser", schema.Accounts{
		"stakingInstance": inst.Address,
		"userInstance":    userInstance,
		"authority":       d.user,
	}, superior)

	return d.finish(ctx, &domain.Plan{Target: userInstance})
}

type StakeLP struct {
	// Amount is in LP tokens.
	Amount    string `json:"amount"`
	StakeType uint64 `json:"stakeType"`
	// Index is the staking slot; the first free one when unset.
	Index *uint64 `json:"index,omitempty"`
}

func (a *Assembler) StakeLP(ctx context.Context, session *domain.Session, p StakeLP) (*domain.Plan, error) {
	const kind = domain.OpStakeLP
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}

	inst, user, err := a.stakingState(ctx, kind, d.user)
	if err != nil {
		return nil, err
	}
	if p.StakeType >= uint64(len(inst.Record.Pools)) {
		return nil, invalid(kind, "stake type %d out of range", p.StakeType)
	}
	var index uint64
	if p.Index != nil {
		index = *p.Index
		if index >= domain.MaxStakedSlots {
			return nil, invalid(kind, "slot %d out of range", index)
		}
	} else {
		var ok bool
		if index, ok = user.Record.FreeSlot(); !ok {
			return nil, invalid(kind, "no free staking slot")
		}
	}

	lpMint := a.lpMint(inst.Record)
	decimals, err := a.reader.MintDecimals(ctx, lpMint)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParseToBase(p.Amount, int32(decimals))
	if err != nil {
		return nil, invalid(kind, "amount: %v", err)
	}
	if amount == 0 {
		return nil, invalid(kind, "amount must be positive")
	}
	balance, err := a.reader.TokenBalance(ctx, d.user, lpMint)
	if err != nil {
		return nil, err
	}
	if !balance.Exists || balance.Amount < amount {
		return nil, insufficient(kind, balance.Account, "have %d, need %d", balance.Amount, amount)
	}

	d.add(schema.Staking, "enterStaking", schema.Accounts{
		"stakingInstance":    inst.Address,
		"userInstance":       user.Address,
		"userLpTokenAccount": balance.Account,
		"gdtcLpInAccount":    d.ensure(inst.Address, lpMint),
		"authority":          d.user,
	}, amount, p.StakeType, index)

	return d.finish(ctx, &domain.Plan{Target: user.Address})
}

type ClaimStakingRewards struct {
	Index uint64 `json:"index"`
	// Superior defaults to the referrer stored with the staking user.
	Superior solana.PublicKey `json:"superior"`
}

func (a *Assembler) ClaimStakingRewards(ctx context.Context, session *domain.Session, p ClaimStakingRewards) (*domain.Plan, error) {
	const kind = domain.OpClaimStakingRewards
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}

	inst, user, err := a.stakingState(ctx, kind, d.user)
	if err != nil {
		return nil, err
	}
	if err := stakedSlot(kind, user, p.Index); err != nil {
		return nil, err
	}
	superior := superiorOr(p.Superior, user.Record.UserSuperiorAccount, a.cfg.Superior)
	if superior.IsZero() {
		return nil, invalid(kind, "no superior address")
	}

	reward := inst.Record.RewardTokenMint
	if reward.IsZero() {
		reward = a.cfg.BIOMint
	}

	d.add(schema.Staking, "claimRewards", schema.Accounts{
		"authority":                  d.user,
		"stakingInstance":            inst.Address,
		"userInstance":               user.Address,
		"userSuperGdtcTokenAccount":  d.ensure(superior, reward),
		"userGdtcTokenAccount":       d.ensure(d.user, reward),
		"userGlobalPoolTokenAccount": d.ensure(inst.Record.GDTCPoolAddress, a.cfg.BIOMint),
		"blackHoleBioAccount":        d.ensure(a.cfg.BlackHole, reward),
		"bioMintAccount":             a.cfg.BIOMint,
		"gdtcRewardOutAccount":       d.ata(inst.Address, reward),
	}, p.Index)

	return d.finish(ctx, &domain.Plan{Target: user.Address})
}

type CancelStaking struct {
	Index uint64 `json:"index"`
}

func (a *Assembler) CancelStaking(ctx context.Context, session *domain.Session, p CancelStaking) (*domain.Plan, error) {
	const kind = domain.OpCancelStaking
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}

	inst, user, err := a.stakingState(ctx, kind, d.user)
	if err != nil {
		return nil, err
	}
	if err := stakedSlot(kind, user, p.Index); err != nil {
		return nil, err
	}
	lpMint := a.lpMint(inst.Record)

	d.add(schema.Staking, "cancelStaking", schema.Accounts{
		"authority":          d.user,
		"stakingInstance":    inst.Address,
		"userInstance":       user.Address,
		"userLpTokenAccount": d.ensure(d.user, lpMint),
		"gdtcLpInAccount":    d.ata(inst.Address, lpMint),
	}, p.Index)

	return d.finish(ctx, &domain.Plan{Target: user.Address})
}

func (a *Assembler) lpMint(inst domain.StakingInstance) solana.PublicKey {
	if !inst.StakingTokenMint.IsZero() {
		return inst.StakingTokenMint
	}
	return a.cfg.LPMint
}

// stakingState reads the staking instance and user's staking record. A
// user without a record has to be initialized first.
func (a *Assembler) stakingState(ctx context.Context, kind domain.OperationKind, user solana.PublicKey) (*domain.Keyed[domain.StakingInstance], *domain.Keyed[domain.StakingUser], error) {
	inst, err := a.reader.StakingInstance(ctx)
	if err != nil {
		return nil, nil, prerequisite(kind, "staking instance", err)
	}
	rec, err := a.reader.StakingUser(ctx, user)
	if err != nil {
		return nil, nil, prerequisite(kind, "staking user, initialize first", err)
	}
	return inst, rec, nil
}

func stakedSlot(kind domain.OperationKind, user *domain.Keyed[domain.StakingUser], index uint64) error {
	if index >= domain.MaxStakedSlots {
		return invalid(kind, "slot %d out of range", index)
	}
	if !user.Record.StakedInfo[index].IsStaked {
		return common.NewOperationError(string(kind), user.Address,
			fmt.Errorf("%w: slot %d holds no stake", common.ErrInvalidParams, index))
	}
	return nil
}
