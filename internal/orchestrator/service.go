// Package orchestrator composes the reader, resolver, lookup-table manager,
// assembler and pipeline for the configured wallet.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/ledger-orchestrator/internal/adapters/blockchain"
	"github.com/hxuan190/ledger-orchestrator/internal/adapters/persistence"
	"github.com/hxuan190/ledger-orchestrator/internal/assembler"
	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/config"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
	"github.com/hxuan190/ledger-orchestrator/internal/ledger"
	"github.com/hxuan190/ledger-orchestrator/internal/lut"
	"github.com/hxuan190/ledger-orchestrator/internal/pipeline"
	"github.com/hxuan190/ledger-orchestrator/internal/priority"
	"github.com/hxuan190/ledger-orchestrator/internal/route"
	"github.com/hxuan190/ledger-orchestrator/internal/schema"
	"github.com/hxuan190/ledger-orchestrator/internal/services"
)

const ORCHESTRATOR_SERVICE = "orchestrator-service"

// OperationTimeout bounds one operation from assembly to confirmation.
const OperationTimeout = 120 * time.Second

// warmTimeout bounds the startup fetch of the pinned pools.
const warmTimeout = 30 * time.Second

// Deps are the collaborators New composes.
type Deps struct {
	Client       blockchain.LedgerRPC
	Blockhashes  pipeline.Blockhashes
	CoSigner     pipeline.CoSigner
	Fees         assembler.FeePricer
	Storage      *persistence.Storage
	Signer       *solana.PrivateKey
	Env          string
	Network      *config.NetworkConfig
	LUT          *config.LUTConfig
	PollInterval time.Duration
}

type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	network  *config.NetworkConfig
	storage  *persistence.Storage
	registry *schema.Registry
	reader   *ledger.Reader
	resolver *route.Resolver
	cpmm     *route.CPMMIndex
	tables   *lut.Manager
	pipeline *pipeline.Pipeline
	builder  *assembler.Assembler
	session  *domain.Session
}

// New composes a service outside the container.
func New(d Deps) (*Service, error) {
	svc := &Service{}
	svc.logger = services.NewServiceLogger(svc)
	if err := svc.compose(d); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *Service) ID() string {
	return ORCHESTRATOR_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	general := c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	wallet := c.GetConfig(config.WALLET_CONFIG_KEY).(*config.WalletConfig)
	cosigner := c.GetConfig(config.COSIGNER_CONFIG_KEY).(*config.CoSignerConfig)
	network := c.GetConfig(config.NETWORK_CONFIG_KEY).(*config.NetworkConfig)
	lutConfig := c.GetConfig(config.LUT_CONFIG_KEY).(*config.LUTConfig)
	blockhashes := c.Instance(blockchain.BLOCKHASH_CACHE_SERVICE).(*blockchain.BlockhashCacheService)
	client := blockchain.NewClient(rpcConfig.RPCUrl, rpcConfig.Timeout)

	storage, err := persistence.NewStorage(lutConfig.DBPath)
	if err != nil {
		return err
	}

	return svc.compose(Deps{
		Client:       client,
		Blockhashes:  blockhashes,
		CoSigner:     pipeline.NewHTTPCoSigner(cosigner.BaseURL, cosigner.Timeout, cosigner.RequestsPerSecond),
		Fees:         priority.NewCalculator(priority.RPCSource(client), network.PriorityFee),
		Storage:      storage,
		Signer:       wallet.Signer(),
		Env:          general.Env,
		Network:      network,
		LUT:          lutConfig,
		PollInterval: rpcConfig.ConfirmPollInterval,
	})
}

func (svc *Service) compose(d Deps) error {
	if d.Network == nil || d.LUT == nil || d.Storage == nil {
		return errors.New("orchestrator: network, lookup table and storage config are required")
	}
	n := d.Network

	registry, err := schema.Load(d.Env, map[schema.Program]solana.PublicKey{
		schema.Crowdfunding: n.CrowdfundingProgram,
		schema.NFTMining:    n.NFTProgram,
		schema.Staking:      n.StakingProgram,
		schema.Vesting:      n.VestingProgram,
	})
	if err != nil {
		return err
	}

	svc.network = n
	svc.storage = d.Storage
	svc.registry = registry
	svc.session = &domain.Session{Key: d.Signer}
	svc.reader = ledger.NewReader(d.Client, ledger.Programs{
		Crowdfunding: registry.Address(schema.Crowdfunding),
		NFTMining:    registry.Address(schema.NFTMining),
		Staking:      registry.Address(schema.Staking),
		Vesting:      registry.Address(schema.Vesting),
	})
	svc.resolver = route.NewResolver(d.Client, n.RaydiumV4Program, d.Storage)
	svc.cpmm = route.NewCPMMIndex(n.CPSwapProgram)
	svc.pipeline = pipeline.New(d.Client, d.Blockhashes, d.CoSigner, d.PollInterval)
	svc.tables = lut.NewManager(d.Client, d.Storage, svc.pipeline, lut.Options{
		Defaults:          svc.tableDefaults(),
		ActivationRetries: d.LUT.ActivationRetries,
		ActivationDelay:   d.LUT.ActivationDelay,
	})
	svc.builder = assembler.New(assembler.Config{
		USDTMint:         n.USDTMint,
		GDTCMint:         n.GDTCMint,
		BIOMint:          n.BIOMint,
		LPMint:           n.LPMint,
		USDTDecimals:     n.USDTDecimals,
		Superior:         n.Superior,
		BlackHole:        n.BlackHole,
		USDTPool:         n.USDTPool,
		GDTCPool:         n.GDTCPool,
		BIOPool:          n.BIOPool,
		ComputeUnitLimit: n.ComputeUnitLimit,
		Fees:             d.Fees,
	}, svc.reader, registry, svc.resolver, svc.cpmm, svc.tables)
	return nil
}

// tableDefaults are the program and mint addresses every table starts with.
func (svc *Service) tableDefaults() []solana.PublicKey {
	n := svc.network
	defaults := []solana.PublicKey{
		common.SystemProgramID,
		common.TokenProgramID,
		common.ATAProgramID,
		common.RentSysvarID,
		common.WrappedSolMint,
		computebudget.ProgramID,
		n.RaydiumV4Program,
		n.CPSwapProgram,
		n.USDTPool,
		n.GDTCPool,
	}
	for _, p := range schema.Programs {
		defaults = append(defaults, svc.registry.Address(p))
	}
	return defaults
}

func (svc *Service) Start() error {
	if n := svc.network; n.PinnedPoolsFile != "" {
		count, err := svc.resolver.LoadPinnedFile(n.PinnedPoolsFile)
		if err != nil {
			return err
		}
		svc.logger.Info().Int("pools", count).Str("file", n.PinnedPoolsFile).Msg("[Orchestrator] loaded pinned pools")
	}
	if count, err := svc.resolver.LoadStored(); err != nil {
		svc.logger.Warn().Err(err).Msg("[Orchestrator] failed to load stored pools")
	} else if count > 0 {
		svc.logger.Info().Int("pools", count).Msg("[Orchestrator] loaded stored pools")
	}

	ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
	defer cancel()
	if err := svc.resolver.Warm(ctx, svc.network.USDTPool, svc.network.GDTCPool); err != nil {
		// unpinned pools are still resolved per call
		svc.logger.Warn().Err(err).Msg("[Orchestrator] failed to pin swap pools")
	}

	if err := svc.cpmm.Build(svc.network.AmmConfigScanLimit, route.CPMMPool{
		Address: svc.network.BIOPool,
		MintA:   svc.network.GDTCMint,
		MintB:   svc.network.BIOMint,
	}); err != nil {
		return err
	}

	event := svc.logger.Info().Str("env", svc.registry.Env())
	if svc.session.Connected() {
		event = event.Str("wallet", svc.session.PublicKey().String())
	}
	event.Msg("[Orchestrator] ready")
	return nil
}

func (svc *Service) Stop() error {
	return svc.storage.Close()
}

func (svc *Service) Session() *domain.Session {
	return svc.session
}

func (svc *Service) Reader() *ledger.Reader {
	return svc.reader
}

func (svc *Service) Resolver() *route.Resolver {
	return svc.resolver
}

// Outcome is what an operation request returns: a receipt, or a simulation
// when the request was a dry run.
type Outcome struct {
	Receipt    *domain.Receipt          `json:"receipt,omitempty"`
	Simulation *domain.SimulationResult `json:"simulation,omitempty"`
}

// Execute assembles kind from its JSON parameters for the configured wallet
// and submits it, or only simulates it when dryRun is set. A failed
// submission still returns the receipt reached so far.
func (svc *Service) Execute(ctx context.Context, kind domain.OperationKind, params []byte, dryRun bool) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	wallet := ""
	if svc.session.Connected() {
		wallet = svc.session.PublicKey().String()
	}
	logger := svc.logger.Operation(string(kind), wallet)

	plan, err := svc.builder.Assemble(ctx, svc.session, kind, params)
	if err != nil {
		logger.Debug().Err(err).Msg("[Orchestrator] assembly failed")
		return nil, err
	}

	if dryRun {
		sim, err := svc.pipeline.Simulate(ctx, svc.session, plan)
		if err != nil {
			return nil, err
		}
		return &Outcome{Simulation: sim}, nil
	}

	rec, err := svc.pipeline.Run(ctx, svc.session, plan)
	if err != nil {
		logger.Warn().Err(err).Str("state", string(rec.State)).Msg("[Orchestrator] operation failed")
		return &Outcome{Receipt: &rec}, err
	}
	logger.Info().
		Str("signature", rec.Signature).
		Bool("duplicate", rec.Duplicate).
		Bool("abandoned", rec.Abandoned).
		Msg("[Orchestrator] operation finished")
	return &Outcome{Receipt: &rec}, nil
}

// InvalidateTable forgets the wallet's lookup table; the next operation that
// needs one creates a fresh table.
func (svc *Service) InvalidateTable() (solana.PublicKey, error) {
	if !svc.session.Connected() {
		return solana.PublicKey{}, common.ErrUnauthenticated
	}
	signer := svc.session.PublicKey()
	return signer, svc.tables.Invalidate(signer)
}
