package assembler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/route"
	"github.com/hxuan190/ledger-orchestrator/internal/schema"
	"github.com/hxuan190/ledger-orchestrator/internal/units"
)

type MintViaNFT struct {
	// USDTAmount is in USDT.
	USDTAmount string           `json:"usdtAmount"`
	Superior   solana.PublicKey `json:"superior"`
}

// MintViaNFT opens the next mining order and routes the USDT through the
// same three swaps as a share purchase before staking the order.
func (a *Assembler) MintViaNFT(ctx context.Context, session *domain.Session, p MintViaNFT) (*domain.Plan, error) {
	const kind = domain.OpMintViaNFTPath
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	amount, err := units.ParseToBase(p.USDTAmount, a.cfg.USDTDecimals)
	if err != nil {
		return nil, invalid(kind, "usdtAmount: %v", err)
	}
	if amount == 0 {
		return nil, invalid(kind, "usdtAmount must be positive")
	}

	usdt, err := a.reader.TokenBalance(ctx, d.user, a.cfg.USDTMint)
	if err != nil {
		return nil, err
	}
	if !usdt.Exists {
		return nil, insufficient(kind, usdt.Account, "no USDT token account")
	}
	if usdt.Amount < amount {
		return nil, insufficient(kind, usdt.Account, "have %d, need %d", usdt.Amount, amount)
	}

	sys, err := a.reader.NftMiningSystem(ctx)
	if err != nil {
		return nil, prerequisite(kind, "nft mining system", err)
	}
	superior := superiorOr(p.Superior, a.cfg.Superior)
	if superior.IsZero() {
		return nil, common.NewOperationError(string(kind), nil,
			fmt.Errorf("%w: no superior address configured", common.ErrPrerequisiteStateMissing))
	}

	order := d.pda(a.nftMining().OrderInfo(sys.Record.OrderInfoIndex + 1))
	rec := sys.Record

	userWSOL := d.ensure(d.user, common.WrappedSolMint)
	superiorUSDT := d.ensure(superior, a.cfg.USDTMint)
	marketUSDT := d.ensure(rec.MarketPoolAddress, a.cfg.USDTMint)
	userGDTC := d.ensure(d.user, a.cfg.GDTCMint)
	blackholeGDTC := d.ensure(rec.BlackHoleAddress, a.cfg.GDTCMint)
	userBIO := d.ensure(d.user, a.cfg.BIOMint)
	blackholeBIO := d.ensure(rec.BlackHoleAddress, a.cfg.BIOMint)
	poolBIO := d.ensure(rec.PoolAddress, a.cfg.BIOMint)

	usdtRoute, err := a.routes.Resolve(ctx, a.cfg.USDTPool)
	if err != nil {
		return nil, err
	}
	gdtcRoute, err := a.routes.Resolve(ctx, a.cfg.GDTCPool)
	if err != nil {
		return nil, err
	}
	bio, err := a.cpmm.Route(a.cfg.BIOPool, a.cfg.GDTCMint, a.cfg.BIOMint)
	if err != nil {
		return nil, err
	}

	head := schema.Accounts{
		"user":            d.user,
		"nftMiningSystem": sys.Address,
		"orderInfo":       order,
	}

	d.add(schema.NFTMining, "ammUsdtWsol", merge(head,
		route.SwapRoles(usdtRoute, usdt.Account, userWSOL, d.user),
		schema.Accounts{
			"userUsdtAccount":              usdt.Account,
			"userWsolAccount":              userWSOL,
			"userSuperiorUsdtAccount":      superiorUSDT,
			"marketPoolAddressUsdtAccount": marketUSDT,
			"usdtMintAccount":              a.cfg.USDTMint,
		}),
		amount, minimumOut)

	d.add(schema.NFTMining, "ammWsolGdtc", merge(head,
		route.SwapRoles(gdtcRoute, userWSOL, userGDTC, d.user),
		schema.Accounts{
			"userWsolAccount":      userWSOL,
			"userGdtcAccount":      userGDTC,
			"blackHoleGdtcAccount": blackholeGDTC,
		}),
		minimumOut)

	d.add(schema.NFTMining, "gdtcToBio", merge(head, cpmmRoles("", bio), schema.Accounts{
		"userGdtcAccount":     userGDTC,
		"userBioAccount":      userBIO,
		"blackHoleBioAccount": blackholeBIO,
		"poolAddressBioMint":  poolBIO,
		"gdtcMint":            a.cfg.GDTCMint,
		"bioMint":             a.cfg.BIOMint,
	}))

	d.add(schema.NFTMining, "enterStaking", head)

	d.packInto(a.purchaseTableKeys(usdtRoute, bio, usdt.Account, userWSOL, userGDTC, userBIO, blackholeBIO)...)

	return d.finish(ctx, &domain.Plan{Target: order})
}

type ClaimRewards struct {
	OrderIndex uint64 `json:"orderIndex"`
}

// ClaimRewards collects the mining reward accrued by one order.
func (a *Assembler) ClaimRewards(ctx context.Context, session *domain.Session, p ClaimRewards) (*domain.Plan, error) {
	const kind = domain.OpClaimRewards
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}

	sys, order, err := a.miningOrder(ctx, kind, d.user, p.OrderIndex)
	if err != nil {
		return nil, err
	}
	superior := superiorOr(order.Record.UserSuperiorAccount, a.cfg.Superior)
	if superior.IsZero() {
		return nil, invalid(kind, "order %d has no superior", p.OrderIndex)
	}

	bioMint := a.cfg.BIOMint
	userBIO := d.ensure(d.user, bioMint)
	superiorBIO := d.ensure(superior, bioMint)

	d.add(schema.NFTMining, "claimRewards", schema.Accounts{
		"user":                     d.user,
		"nftMiningSystem":          sys.Address,
		"orderInfo":                order.Address,
		"userBioAccount":           userBIO,
		"poolBioAccount":           d.ata(sys.Record.PoolAddress, bioMint),
		"systemBioAccount":         d.ata(sys.Address, bioMint),
		"userSuperiorTokenAccount": superiorBIO,
		"blackHoleBioAccount":      d.ata(a.cfg.BlackHole, bioMint),
		"bioMint":                  bioMint,
	})

	return d.finish(ctx, &domain.Plan{Target: order.Address})
}

type AddStake struct {
	OrderIndex uint64 `json:"orderIndex"`
	// ReduceAmount is in USDT, GDTCAmount in GDTC.
	ReduceAmount string `json:"reduceAmount"`
	GDTCAmount   string `json:"gdtcAmount"`
	// GDTCPrice is forwarded to the co-signer, which prices the top-up.
	GDTCPrice json.Number `json:"gdtcPrice"`
}

// AddStake tops up an order with GDTC. The mining system admin co-signs it
// after checking the price.
func (a *Assembler) AddStake(ctx context.Context, session *domain.Session, p AddStake) (*domain.Plan, error) {
	const kind = domain.OpAddStake
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	reduce, err := units.ParseToBase(p.ReduceAmount, a.cfg.USDTDecimals)
	if err != nil {
		return nil, invalid(kind, "reduceAmount: %v", err)
	}
	if _, err := units.ParseHuman(p.GDTCPrice.String()); err != nil {
		return nil, invalid(kind, "gdtcPrice: %v", err)
	}
	decimals, err := a.reader.MintDecimals(ctx, a.cfg.GDTCMint)
	if err != nil {
		return nil, err
	}
	gdtc, err := units.ParseToBase(p.GDTCAmount, int32(decimals))
	if err != nil {
		return nil, invalid(kind, "gdtcAmount: %v", err)
	}

	balance, err := a.reader.TokenBalance(ctx, d.user, a.cfg.GDTCMint)
	if err != nil {
		return nil, err
	}
	if balance.Amount < gdtc {
		return nil, insufficient(kind, balance.Account, "have %d, need %d", balance.Amount, gdtc)
	}

	sys, order, err := a.miningOrder(ctx, kind, d.user, p.OrderIndex)
	if err != nil {
		return nil, err
	}
	admin := sys.Record.Admin

	d.add(schema.NFTMining, "addStake", schema.Accounts{
		"user":                 d.user,
		"admin":                admin,
		"nftMiningSystem":      sys.Address,
		"orderInfo":            order.Address,
		"userAddress":          d.user,
		"userGdtcAccount":      balance.Account,
		"blackHoleGdtcAccount": d.ensure(sys.Record.BlackHoleAddress, a.cfg.GDTCMint),
	}, reduce, gdtc)

	return d.finish(ctx, &domain.Plan{
		Expectation: &domain.Expectation{
			ProgramID:      a.program(schema.NFTMining).String(),
			User:           d.user.String(),
			ProjectSigner:  admin.String(),
			Price:          p.GDTCPrice,
			OrderInfoIndex: domain.U64(p.OrderIndex),
		},
		Counterparty: admin,
		Target:       order.Address,
	})
}

// miningOrder reads the mining system and one order, which must belong to
// user.
func (a *Assembler) miningOrder(ctx context.Context, kind domain.OperationKind, user solana.PublicKey, index uint64) (*domain.Keyed[domain.NftMiningSystem], *domain.Keyed[domain.OrderInfo], error) {
	sys, err := a.reader.NftMiningSystem(ctx)
	if err != nil {
		return nil, nil, prerequisite(kind, "nft mining system", err)
	}
	order, err := a.reader.OrderInfo(ctx, index)
	if err != nil {
		return nil, nil, prerequisite(kind, fmt.Sprintf("order %d", index), err)
	}
	if order.Record.UserAddress != user {
		return nil, nil, common.NewOperationError(string(kind), order.Address,
			fmt.Errorf("%w: order %d belongs to another user", common.ErrInvalidParams, index))
	}
	return sys, order, nil
}
