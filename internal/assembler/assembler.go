// Package assembler turns user-level operations into ordered instruction
// lists. Nothing here writes to the ledger except the lookup table the
// manager may create; the plans are handed to the pipeline for signing.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/ledger"
	"github.com/hxuan190/ledger-orchestrator/internal/lut"
	"github.com/hxuan190/ledger-orchestrator/internal/priority"
	"github.com/hxuan190/ledger-orchestrator/internal/schema"
)

type Config struct {
	USDTMint     solana.PublicKey
	GDTCMint     solana.PublicKey
	BIOMint      solana.PublicKey
	LPMint       solana.PublicKey
	USDTDecimals int32

	// Superior is the referrer passed when the caller names none.
	Superior solana.PublicKey
	// BlackHole owns the burn accounts the reward claims pay into.
	BlackHole solana.PublicKey

	USDTPool solana.PublicKey
	GDTCPool solana.PublicKey
	BIOPool  solana.PublicKey

	ComputeUnitLimit uint32
	// Fees prices compute units; nil attaches no price instruction.
	Fees FeePricer
}

type FeePricer interface {
	MicroLamports(ctx context.Context, writable []solana.PublicKey) uint64
}

type RouteSource interface {
	Resolve(ctx context.Context, pool solana.PublicKey) (domain.PoolRouteDescriptor, error)
}

type CPMMSource interface {
	Route(pool, inputMint, outputMint solana.PublicKey) (domain.CPMMRoute, error)
}

type TableSource interface {
	Acquire(ctx context.Context, session *domain.Session, extra []solana.PublicKey) (*lut.Snapshot, error)
}

type Assembler struct {
	cfg     Config
	reader  *ledger.Reader
	schemas *schema.Registry
	routes  RouteSource
	cpmm    CPMMSource
	tables  TableSource
	now     func() time.Time
}

func New(cfg Config, reader *ledger.Reader, schemas *schema.Registry, routes RouteSource, cpmm CPMMSource, tables TableSource) *Assembler {
	if cfg.ComputeUnitLimit == 0 {
		cfg.ComputeUnitLimit = common.DefaultComputeUnitLimit
	}
	if cfg.BlackHole.IsZero() {
		cfg.BlackHole = common.DefaultBlackHoleOwner
	}
	return &Assembler{
		cfg:     cfg,
		reader:  reader,
		schemas: schemas,
		routes:  routes,
		cpmm:    cpmm,
		tables:  tables,
		now:     time.Now,
	}
}

// Assemble decodes params for kind and builds its plan.
func (a *Assembler) Assemble(ctx context.Context, session *domain.Session, kind domain.OperationKind, params []byte) (*domain.Plan, error) {
	if len(params) == 0 {
		params = []byte("{}")
	}
	decode := func(v any) error {
		if err := sonic.Unmarshal(params, v); err != nil {
			return common.NewOperationError(string(kind), nil, fmt.Errorf("%w: %v", common.ErrInvalidParams, err))
		}
		return nil
	}

	switch kind {
	case domain.OpPurchaseShares:
		var p PurchaseShares
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.PurchaseShares(ctx, session, p)
	case domain.OpMintViaNFTPath:
		var p MintViaNFT
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.MintViaNFT(ctx, session, p)
	case domain.OpClaimRewards:
		var p ClaimRewards
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.ClaimRewards(ctx, session, p)
	case domain.OpAddStake:
		var p AddStake
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.AddStake(ctx, session, p)
	case domain.OpCreateVestingSchedule:
		var p CreateVestingSchedule
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.CreateVestingSchedule(ctx, session, p)
	case domain.OpClaimVested:
		var p ClaimVested
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.ClaimVested(ctx, session, p)
	case domain.OpCancelVesting:
		var p CancelVesting
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.CancelVesting(ctx, session, p)
	case domain.OpClaimPurchaseTokens:
		var p ClaimPurchaseTokens
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.ClaimPurchaseTokens(ctx, session, p)
	case domain.OpCreatePhase:
		var p CreatePhase
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.CreatePhase(ctx, session, p)
	case domain.OpStakeLP:
		var p StakeLP
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.StakeLP(ctx, session, p)
	case domain.OpClaimStakingRewards:
		var p ClaimStakingRewards
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.ClaimStakingRewards(ctx, session, p)
	case domain.OpCancelStaking:
		var p CancelStaking
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.CancelStaking(ctx, session, p)
	case domain.OpInitializeStakingUser:
		var p InitializeStakingUser
		if err := decode(&p); err != nil {
			return nil, err
		}
		return a.InitializeStakingUser(ctx, session, p)
	}
	return nil, common.NewOperationError(string(kind), nil, fmt.Errorf("%w: unknown operation", common.ErrInvalidParams))
}

func (a *Assembler) program(p schema.Program) solana.PublicKey {
	return a.schemas.Address(p)
}

func (a *Assembler) crowdfunding() derive.Crowdfunding {
	return derive.Crowdfunding{Program: a.program(schema.Crowdfunding)}
}

func (a *Assembler) nftMining() derive.NFTMining {
	return derive.NFTMining{Program: a.program(schema.NFTMining)}
}

func (a *Assembler) staking() derive.Staking {
	return derive.Staking{Program: a.program(schema.Staking)}
}

func (a *Assembler) vesting() derive.Vesting {
	return derive.Vesting{Program: a.program(schema.Vesting)}
}

// draft collects one plan. Derivation and build errors are sticky and
// reported by finish, so operation code reads top to bottom.
type draft struct {
	a       *Assembler
	kind    domain.OperationKind
	session *domain.Session
	user    solana.PublicKey

	err     error
	creates []ataSpec
	seen    map[solana.PublicKey]struct{}
	body    []solana.Instruction
	table   []solana.PublicKey
}

type ataSpec struct {
	owner   solana.PublicKey
	mint    solana.PublicKey
	address solana.PublicKey
}

func (a *Assembler) begin(session *domain.Session, kind domain.OperationKind) (*draft, error) {
	if !session.Connected() {
		return nil, common.NewOperationError(string(kind), nil, common.ErrUnauthenticated)
	}
	return &draft{
		a:       a,
		kind:    kind,
		session: session,
		user:    session.PublicKey(),
		seen:    make(map[solana.PublicKey]struct{}),
	}, nil
}

func (d *draft) fail(err error) {
	if err != nil && d.err == nil {
		d.err = err
	}
}

// pda unwraps a derivation result.
func (d *draft) pda(addr solana.PublicKey, err error) solana.PublicKey {
	d.fail(err)
	return addr
}

// ata derives owner's associated account for mint without checking it.
func (d *draft) ata(owner, mint solana.PublicKey) solana.PublicKey {
	return d.pda(derive.AssociatedTokenAddress(owner, mint))
}

// ensure derives the associated account and schedules its creation in case
// the existence check finds it absent.
func (d *draft) ensure(owner, mint solana.PublicKey) solana.PublicKey {
	addr := d.ata(owner, mint)
	if d.err != nil {
		return addr
	}
	if _, dup := d.seen[addr]; !dup {
		d.seen[addr] = struct{}{}
		d.creates = append(d.creates, ataSpec{owner: owner, mint: mint, address: addr})
	}
	return addr
}

func (d *draft) add(p schema.Program, name string, accounts schema.Accounts, args ...any) {
	if d.err != nil {
		return
	}
	ix, err := d.a.schemas.Instruction(p, name)
	if err != nil {
		d.fail(err)
		return
	}
	built, err := ix.Build(accounts, args...)
	if err != nil {
		d.fail(err)
		return
	}
	d.body = append(d.body, built)
}

// packInto asks for a lookup table carrying addrs.
func (d *draft) packInto(addrs ...solana.PublicKey) {
	d.table = append(d.table, addrs...)
}

// createMissing runs one batched existence check over the scheduled
// accounts and returns idempotent create instructions for the absent ones.
// An indeterminate answer aborts the plan rather than guessing.
func (d *draft) createMissing(ctx context.Context) ([]solana.Instruction, error) {
	if len(d.creates) == 0 {
		return nil, nil
	}
	addrs := make([]solana.PublicKey, len(d.creates))
	for i, c := range d.creates {
		addrs[i] = c.address
	}
	verdicts, err := d.a.reader.ExistsMany(ctx, addrs)
	if err != nil {
		return nil, common.NewOperationError(string(d.kind), nil, err)
	}

	var out []solana.Instruction
	for i, v := range verdicts {
		switch v {
		case ledger.Exists:
			continue
		case ledger.Indeterminate:
			return nil, common.NewOperationError(string(d.kind), addrs[i], common.ErrIndeterminate)
		}
		ix, _, err := derive.CreateATAInstruction(d.user, d.creates[i].owner, d.creates[i].mint)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}

// finish prefixes the compute budget and account creations, attaches the
// lookup table and fills plan.
func (d *draft) finish(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	if d.err != nil {
		return nil, fmt.Errorf("%s: %w", d.kind, d.err)
	}
	creates, err := d.createMissing(ctx)
	if err != nil {
		return nil, err
	}

	ixs := make([]solana.Instruction, 0, 2+len(creates)+len(d.body))
	ixs = append(ixs, computebudget.NewSetComputeUnitLimitInstruction(d.a.cfg.ComputeUnitLimit).Build())
	if d.a.cfg.Fees != nil {
		if price := d.a.cfg.Fees.MicroLamports(ctx, priority.WritableAccounts(d.body)); price > 0 {
			ixs = append(ixs, computebudget.NewSetComputeUnitPriceInstruction(price).Build())
		}
	}
	ixs = append(ixs, creates...)
	ixs = append(ixs, d.body...)

	plan.Kind = d.kind
	plan.Instructions = ixs
	if len(d.table) > 0 {
		snap, err := d.a.tables.Acquire(ctx, d.session, d.table)
		if err != nil {
			return nil, err
		}
		plan.LookupTable = snap.Address
		plan.TableKeys = snap.Addresses
	}

	log.Debug().
		Str("kind", string(d.kind)).
		Str("user", d.user.String()).
		Int("instructions", len(ixs)).
		Int("creates", len(creates)).
		Bool("coSigned", plan.CoSigned()).
		Msg("[Assembler] plan assembled")
	return plan, nil
}

// prerequisite turns a missing record into ErrPrerequisiteStateMissing,
// keeping the address that was looked up.
func prerequisite(kind domain.OperationKind, what string, err error) error {
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	oe := &common.OperationError{
		Op:  string(kind),
		Err: fmt.Errorf("%w: %s", common.ErrPrerequisiteStateMissing, what),
	}
	var src *common.OperationError
	if errors.As(err, &src) {
		oe.Address = src.Address
	}
	return oe
}

func insufficient(kind domain.OperationKind, account solana.PublicKey, format string, args ...any) error {
	return common.NewOperationError(string(kind), account,
		fmt.Errorf("%w: %s", common.ErrInsufficientFunds, fmt.Sprintf(format, args...)))
}

func invalid(kind domain.OperationKind, format string, args ...any) error {
	return common.NewOperationError(string(kind), nil,
		fmt.Errorf("%w: %s", common.ErrInvalidParams, fmt.Sprintf(format, args...)))
}

func merge(groups ...schema.Accounts) schema.Accounts {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make(schema.Accounts, n)
	for _, g := range groups {
		for k, v := range g {
			out[k] = v
		}
	}
	return out
}

// cpmmRoles names a constant-product route the way the programs do: bare
// camelCase roles, or prefixed ones such as gdtcBioPoolState.
func cpmmRoles(prefix string, r domain.CPMMRoute) schema.Accounts {
	name := func(role string) string {
		if prefix == "" {
			return strings.ToLower(role[:1]) + role[1:]
		}
		return prefix + role
	}
	return schema.Accounts{
		name("CpSwapProgram"):      r.Program,
		name("Authority"):          r.Authority,
		name("AmmConfig"):          r.AmmConfig,
		name("PoolState"):          r.Pool,
		name("InputVault"):         r.InputVault,
		name("OutputVault"):        r.OutputVault,
		name("InputTokenProgram"):  r.TokenProgram,
		name("OutputTokenProgram"): r.TokenProgram,
		name("InputTokenMint"):     r.InputMint,
		name("OutputTokenMint"):    r.OutputMint,
		name("ObservationState"):   r.Observation,
	}
}

// superiorOr picks the first non-zero referrer.
func superiorOr(candidates ...solana.PublicKey) solana.PublicKey {
	for _, c := range candidates {
		if !c.IsZero() {
			return c
		}
	}
	return solana.PublicKey{}
}
