package ledger

import (
	"cmp"
	"context"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

// Record field offsets used for server-side filtering. All follow the
// 8-byte discriminator.
const (
	userPurchaseUserOffset   = 8
	vestingCreatorOffset     = 8
	vestingBeneficiaryOffset = 8 + 32
)

func (r *Reader) crowdfunding() derive.Crowdfunding {
	return derive.Crowdfunding{Program: r.programs.Crowdfunding}
}

func (r *Reader) CrowdfundingInfo(ctx context.Context) (*domain.Keyed[domain.CrowdfundingInfo], error) {
	addr, err := r.crowdfunding().Instance()
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.CrowdfundingInfo](ctx, r, addr, domain.KindCrowdfundingInfo)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.CrowdfundingInfo]{Address: addr, Record: *rec}, nil
}

func (r *Reader) SalePhase(ctx context.Context, phaseID uint64) (*domain.Keyed[domain.SalePhase], error) {
	addr, err := r.crowdfunding().SalePhase(phaseID)
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.SalePhase](ctx, r, addr, domain.KindSalePhase)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.SalePhase]{Address: addr, Record: *rec}, nil
}

func (r *Reader) UserPurchase(ctx context.Context, user solana.PublicKey, phaseID, purchaseID uint64) (*domain.Keyed[domain.UserPurchase], error) {
	addr, err := r.crowdfunding().UserPurchase(user, phaseID, purchaseID)
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.UserPurchase](ctx, r, addr, domain.KindUserPurchase)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.UserPurchase]{Address: addr, Record: *rec}, nil
}

// SalePhases lists every phase, newest phase id first.
func (r *Reader) SalePhases(ctx context.Context) ([]domain.Keyed[domain.SalePhase], error) {
	phases, err := listRecords[domain.SalePhase](ctx, r, r.programs.Crowdfunding, domain.KindSalePhase)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(phases, func(a, b domain.Keyed[domain.SalePhase]) int {
		if c := cmp.Compare(b.Record.PhaseID, a.Record.PhaseID); c != 0 {
			return c
		}
		return byAddress(a.Address, b.Address)
	})
	return phases, nil
}

// UserPurchases lists user's purchases, most recent first.
func (r *Reader) UserPurchases(ctx context.Context, user solana.PublicKey) ([]domain.Keyed[domain.UserPurchase], error) {
	purchases, err := listRecords[domain.UserPurchase](ctx, r, r.programs.Crowdfunding, domain.KindUserPurchase,
		memcmp(userPurchaseUserOffset, user))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(purchases, func(a, b domain.Keyed[domain.UserPurchase]) int {
		if c := cmp.Compare(b.Record.PurchaseTime, a.Record.PurchaseTime); c != 0 {
			return c
		}
		return byAddress(a.Address, b.Address)
	})
	return purchases, nil
}

func (r *Reader) NftMiningSystem(ctx context.Context) (*domain.Keyed[domain.NftMiningSystem], error) {
	addr, err := derive.NFTMining{Program: r.programs.NFTMining}.System()
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.NftMiningSystem](ctx, r, addr, domain.KindNftMiningSystem)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.NftMiningSystem]{Address: addr, Record: *rec}, nil
}

func (r *Reader) OrderInfo(ctx context.Context, index uint64) (*domain.Keyed[domain.OrderInfo], error) {
	addr, err := derive.NFTMining{Program: r.programs.NFTMining}.OrderInfo(index)
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.OrderInfo](ctx, r, addr, domain.KindOrderInfo)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.OrderInfo]{Address: addr, Record: *rec}, nil
}

// OrderInfos lists user's mining orders, highest order index first. The
// owner is filtered client-side.
func (r *Reader) OrderInfos(ctx context.Context, user solana.PublicKey) ([]domain.Keyed[domain.OrderInfo], error) {
	all, err := listRecords[domain.OrderInfo](ctx, r, r.programs.NFTMining, domain.KindOrderInfo)
	if err != nil {
		return nil, err
	}
	orders := all[:0]
	for _, o := range all {
		if o.Record.UserAddress == user {
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b domain.Keyed[domain.OrderInfo]) int {
		if c := cmp.Compare(b.Record.OrderInfoIndex, a.Record.OrderInfoIndex); c != 0 {
			return c
		}
		return byAddress(a.Address, b.Address)
	})
	return orders, nil
}

func (r *Reader) StakingInstance(ctx context.Context) (*domain.Keyed[domain.StakingInstance], error) {
	addr, err := derive.Staking{Program: r.programs.Staking}.Instance()
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.StakingInstance](ctx, r, addr, domain.KindStakingInstance)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.StakingInstance]{Address: addr, Record: *rec}, nil
}

func (r *Reader) StakingUser(ctx context.Context, authority solana.PublicKey) (*domain.Keyed[domain.StakingUser], error) {
	addr, err := derive.Staking{Program: r.programs.Staking}.User(authority)
	if err != nil {
		return nil, err
	}
	rec, err := fetchRecord[domain.StakingUser](ctx, r, addr, domain.KindStakingUser)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.StakingUser]{Address: addr, Record: *rec}, nil
}

func (r *Reader) VestingSchedule(ctx context.Context, address solana.PublicKey) (*domain.Keyed[domain.VestingSchedule], error) {
	rec, err := fetchRecord[domain.VestingSchedule](ctx, r, address, domain.KindVestingSchedule)
	if err != nil {
		return nil, err
	}
	return &domain.Keyed[domain.VestingSchedule]{Address: address, Record: *rec}, nil
}

// VestingFilter narrows VestingSchedules. Zero keys are ignored.
type VestingFilter struct {
	Creator     solana.PublicKey
	Beneficiary solana.PublicKey
}

// VestingSchedules lists schedules, newest first.
func (r *Reader) VestingSchedules(ctx context.Context, f VestingFilter) ([]domain.Keyed[domain.VestingSchedule], error) {
	var filters []rpc.RPCFilter
	if !f.Creator.IsZero() {
		filters = append(filters, memcmp(vestingCreatorOffset, f.Creator))
	}
	if !f.Beneficiary.IsZero() {
		filters = append(filters, memcmp(vestingBeneficiaryOffset, f.Beneficiary))
	}
	schedules, err := listRecords[domain.VestingSchedule](ctx, r, r.programs.Vesting, domain.KindVestingSchedule, filters...)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(schedules, func(a, b domain.Keyed[domain.VestingSchedule]) int {
		if c := cmp.Compare(b.Record.CreatedAt, a.Record.CreatedAt); c != 0 {
			return c
		}
		return byAddress(a.Address, b.Address)
	})
	return schedules, nil
}

func byAddress(a, b solana.PublicKey) int {
	return cmp.Compare(a.String(), b.String())
}
