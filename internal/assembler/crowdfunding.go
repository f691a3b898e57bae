package assembler

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/route"
	"github.com/hxuan190/ledger-orchestrator/internal/schema"
	"github.com/hxuan190/ledger-orchestrator/internal/units"
)

// minimumOut is the slippage floor the purchase swaps pass; the programs
// price the legs themselves.
const minimumOut = uint64(1)

type PurchaseShares struct {
	SharesToBuy uint64 `json:"sharesToBuy"`
	PhaseID     uint64 `json:"phaseId"`
	// SoldShares keys the purchase record. The phase's counter is used when
	// it is not given.
	SoldShares   *uint64 `json:"soldShares,omitempty"`
	PurchaseLink string  `json:"purchaseLink"`
}

// PurchaseShares buys shares of a sale phase: USDT is swapped to WSOL, WSOL
// to GDTC and GDTC to BIO in one transaction the project signer co-signs.
func (a *Assembler) PurchaseShares(ctx context.Context, session *domain.Session, p PurchaseShares) (*domain.Plan, error) {
	const kind = domain.OpPurchaseShares
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	if p.SharesToBuy == 0 {
		return nil, invalid(kind, "sharesToBuy must be positive")
	}

	// the funding account is checked before anything else is read
	usdt, err := a.reader.TokenBalance(ctx, d.user, a.cfg.USDTMint)
	if err != nil {
		return nil, err
	}
	if !usdt.Exists {
		return nil, insufficient(kind, usdt.Account, "no USDT token account")
	}

	info, err := a.reader.CrowdfundingInfo(ctx)
	if err != nil {
		return nil, prerequisite(kind, "crowdfunding info", err)
	}
	phase, err := a.reader.SalePhase(ctx, p.PhaseID)
	if err != nil {
		return nil, prerequisite(kind, fmt.Sprintf("sale phase %d", p.PhaseID), err)
	}

	cost, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(p.SharesToBuy), uint256.NewInt(phase.Record.PricePerShare))
	if overflow || !cost.IsUint64() {
		return nil, invalid(kind, "cost of %d shares overflows", p.SharesToBuy)
	}
	if usdt.Amount < cost.Uint64() {
		return nil, insufficient(kind, usdt.Account, "have %d, need %d", usdt.Amount, cost.Uint64())
	}
	if a.cfg.Superior.IsZero() {
		return nil, common.NewOperationError(string(kind), nil,
			fmt.Errorf("%w: no superior address configured", common.ErrPrerequisiteStateMissing))
	}

	sold := phase.Record.SoldShares
	if p.SoldShares != nil {
		sold = *p.SoldShares
	}
	purchase := d.pda(a.crowdfunding().UserPurchase(d.user, p.PhaseID, sold))
	blackhole := info.Record.GDTCBlackholeAddress

	userWSOL := d.ensure(d.user, common.WrappedSolMint)
	bioBlackhole := d.ensure(blackhole, a.cfg.BIOMint)
	userBIO := d.ensure(d.user, a.cfg.BIOMint)
	userGDTC := d.ensure(d.user, a.cfg.GDTCMint)
	gdtcBlackhole := d.ensure(blackhole, a.cfg.GDTCMint)

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

	signer := info.Record.ProjectSigner
	head := schema.Accounts{
		"crowdfundingInfo": info.Address,
		"salePhase":        phase.Address,
		"userPurchase":     purchase,
		"user":             d.user,
		"projectSigner":    signer,
	}

	d.add(schema.Crowdfunding, "ammUsdtToWsol", merge(head,
		route.SwapRoles(usdtRoute, usdt.Account, userWSOL, d.user),
		schema.Accounts{
			"userUsdtTokenAccount": usdt.Account,
			"userWsolTokenAccount": userWSOL,
			"usdtMintAccount":      a.cfg.USDTMint,
		}),
		p.SharesToBuy, p.PhaseID, a.cfg.Superior, minimumOut)

	d.add(schema.Crowdfunding, "ammWsolGdtc", merge(head,
		route.SwapRoles(gdtcRoute, userWSOL, userGDTC, d.user),
		schema.Accounts{
			"userWsolAccount":           userWSOL,
			"userGdtcTokenAccount":      userGDTC,
			"gdtcBlackholeTokenAccount": gdtcBlackhole,
			"gdtcMintAccount":           a.cfg.GDTCMint,
		}),
		p.SharesToBuy, p.PhaseID, minimumOut)

	gdtcToBio := merge(head, cpmmRoles("gdtcBio", bio), schema.Accounts{
		"userGdtcTokenAccount":     userGDTC,
		"userBioTokenAccount":      userBIO,
		"bioBlackholeTokenAccount": bioBlackhole,
	})
	delete(gdtcToBio, "projectSigner")
	d.add(schema.Crowdfunding, "gdtcToBio", gdtcToBio, p.SharesToBuy, p.PhaseID)

	d.packInto(a.purchaseTableKeys(usdtRoute, bio, usdt.Account, userWSOL, userGDTC, userBIO, bioBlackhole)...)

	return d.finish(ctx, &domain.Plan{
		Expectation: &domain.Expectation{
			ProgramID:     a.program(schema.Crowdfunding).String(),
			User:          d.user.String(),
			ProjectSigner: signer.String(),
			PhaseID:       domain.U64(p.PhaseID),
			PurchaseID:    domain.U64(sold),
			SharesToBuy:   domain.U64(p.SharesToBuy),
		},
		PurchaseLink: p.PurchaseLink,
		Counterparty: signer,
		Target:       purchase,
	})
}

// purchaseTableKeys are the 14 per-user addresses both purchase paths pack
// into the signer's lookup table.
func (a *Assembler) purchaseTableKeys(v4 domain.PoolRouteDescriptor, bio domain.CPMMRoute, userUSDT, userWSOL, userGDTC, userBIO, bioBlackhole solana.PublicKey) []solana.PublicKey {
	return []solana.PublicKey{
		a.cfg.USDTMint,
		a.cfg.GDTCMint,
		a.cfg.BIOMint,
		v4.Authority,
		userUSDT,
		userWSOL,
		userGDTC,
		userBIO,
		bioBlackhole,
		bio.AmmConfig,
		bio.Pool,
		bio.InputVault,
		bio.OutputVault,
		bio.Observation,
	}
}

type ClaimPurchaseTokens struct {
	PhaseID    uint64 `json:"phaseId"`
	PurchaseID uint64 `json:"purchaseId"`
	// Superior defaults to the referrer recorded with the purchase.
	Superior solana.PublicKey `json:"superior"`
}

// ClaimPurchaseTokens releases the vested BIO of one purchase.
func (a *Assembler) ClaimPurchaseTokens(ctx context.Context, session *domain.Session, p ClaimPurchaseTokens) (*domain.Plan, error) {
	const kind = domain.OpClaimPurchaseTokens
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}

	info, err := a.reader.CrowdfundingInfo(ctx)
	if err != nil {
		return nil, prerequisite(kind, "crowdfunding info", err)
	}
	phase, err := a.reader.SalePhase(ctx, p.PhaseID)
	if err != nil {
		return nil, prerequisite(kind, fmt.Sprintf("sale phase %d", p.PhaseID), err)
	}
	purchase, err := a.reader.UserPurchase(ctx, d.user, p.PhaseID, p.PurchaseID)
	if err != nil {
		return nil, prerequisite(kind, fmt.Sprintf("purchase %d of phase %d", p.PurchaseID, p.PhaseID), err)
	}

	superior := superiorOr(p.Superior, purchase.Record.SuperiorAddress, a.cfg.Superior)
	if superior.IsZero() {
		return nil, invalid(kind, "no superior address")
	}

	bioMint := a.cfg.BIOMint
	vault := d.ata(info.Address, bioMint)
	userBIO := d.ensure(d.user, bioMint)
	blackhole := d.ensure(info.Record.GDTCBlackholeAddress, bioMint)
	globalPool := d.ensure(info.Record.GDTCPoolAddress, bioMint)
	superiorBIO := d.ensure(superior, bioMint)

	d.add(schema.Crowdfunding, "claimTokens", schema.Accounts{
		"crowdfundingInfo":           info.Address,
		"salePhase":                  phase.Address,
		"userPurchase":               purchase.Address,
		"user":                       d.user,
		"vaultTokenAccount":          vault,
		"userTokenAccount":           userBIO,
		"userSuperiorTokenAccount":   superiorBIO,
		"userGlobalPoolTokenAccount": globalPool,
		"gdtcBlackholeTokenAccount":  blackhole,
	}, p.PhaseID, p.PurchaseID)

	return d.finish(ctx, &domain.Plan{Target: purchase.Address})
}

type CreatePhase struct {
	// PricePerShare is in USDT.
	PricePerShare string `json:"pricePerShare"`
	StartTime     int64  `json:"startTime"`
}

// CreatePhase opens the next sale phase. Only the crowdfunding admin can
// sign it.
func (a *Assembler) CreatePhase(ctx context.Context, session *domain.Session, p CreatePhase) (*domain.Plan, error) {
	const kind = domain.OpCreatePhase
	d, err := a.begin(session, kind)
	if err != nil {
		return nil, err
	}
	price, err := units.ParseToBase(p.PricePerShare, a.cfg.USDTDecimals)
	if err != nil {
		return nil, invalid(kind, "pricePerShare: %v", err)
	}
	if price == 0 {
		return nil, invalid(kind, "pricePerShare must be positive")
	}

	info, err := a.reader.CrowdfundingInfo(ctx)
	if err != nil {
		return nil, prerequisite(kind, "crowdfunding info", err)
	}
	if info.Record.Admin != d.user {
		return nil, common.NewOperationError(string(kind), info.Address,
			fmt.Errorf("%w: signer is not the crowdfunding admin", common.ErrUnauthenticated))
	}

	id := uint64(info.Record.PhaseCount) + 1
	phase := d.pda(a.crowdfunding().SalePhase(id))
	d.add(schema.Crowdfunding, "createPhase", schema.Accounts{
		"crowdfundingInfo": info.Address,
		"salePhase":        phase,
		"admin":            d.user,
	}, price, p.StartTime, id)

	return d.finish(ctx, &domain.Plan{Target: phase})
}
