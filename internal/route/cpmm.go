package route

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/derive"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

// CPMMPool names a constant-product pool by its two mints.
type CPMMPool struct {
	Address solana.PublicKey
	MintA   solana.PublicKey
	MintB   solana.PublicKey
}

type cpmmEntry struct {
	config solana.PublicKey
	index  uint16
	mint0  solana.PublicKey
	mint1  solana.PublicKey
}

// CPMMIndex maps pool addresses to the amm config they were created under.
// It is built once by scanning config indices; lookups afterwards are O(1).
type CPMMIndex struct {
	program derive.CPMM

	mu      sync.RWMutex
	configs []solana.PublicKey
	pools   map[solana.PublicKey]cpmmEntry
}

func NewCPMMIndex(program solana.PublicKey) *CPMMIndex {
	return &CPMMIndex{
		program: derive.CPMM{Program: program},
		pools:   make(map[solana.PublicKey]cpmmEntry),
	}
}

// mintOrders lists the sorted order first; the program creates pools with
// mint0 < mint1 but configured pairs are not always given that way.
func mintOrders(a, b solana.PublicKey) [2][2]solana.PublicKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return [2][2]solana.PublicKey{{a, b}, {b, a}}
}

// Build derives config addresses 0..limit-1 and indexes every pool whose
// address matches one of them. Pools with no matching config fail the build.
func (x *CPMMIndex) Build(limit int, pools ...CPMMPool) error {
	if limit <= 0 || limit > 1<<16 {
		return fmt.Errorf("config scan limit %d out of range", limit)
	}

	configs := make([]solana.PublicKey, limit)
	for i := range configs {
		cfg, err := x.program.AmmConfig(uint16(i))
		if err != nil {
			return err
		}
		configs[i] = cfg
	}

	index := make(map[solana.PublicKey]cpmmEntry, len(pools))
	for _, p := range pools {
		found := false
	scan:
		for i, cfg := range configs {
			for _, m := range mintOrders(p.MintA, p.MintB) {
				addr, err := x.program.Pool(cfg, m[0], m[1])
				if err != nil {
					return err
				}
				if addr == p.Address {
					index[p.Address] = cpmmEntry{config: cfg, index: uint16(i), mint0: m[0], mint1: m[1]}
					found = true
					break scan
				}
			}
		}
		if !found {
			return common.NewOperationError("index cpmm pool", p.Address,
				fmt.Errorf("%w: no amm config below %d", common.ErrPoolNotFound, limit))
		}
	}

	x.mu.Lock()
	x.configs = configs
	for k, v := range index {
		x.pools[k] = v
	}
	x.mu.Unlock()

	log.Info().Int("configs", limit).Int("pools", len(index)).Msg("[CPMMIndex] built amm config index")
	return nil
}

// Config returns the memoized config address for index.
func (x *CPMMIndex) Config(index uint16) (solana.PublicKey, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if int(index) >= len(x.configs) {
		return solana.PublicKey{}, false
	}
	return x.configs[index], true
}

// Route returns the accounts of a swap through pool from inputMint to
// outputMint.
func (x *CPMMIndex) Route(pool, inputMint, outputMint solana.PublicKey) (domain.CPMMRoute, error) {
	x.mu.RLock()
	e, ok := x.pools[pool]
	x.mu.RUnlock()
	if !ok {
		return domain.CPMMRoute{}, common.NewOperationError("cpmm route", pool, common.ErrPoolNotFound)
	}
	in0 := inputMint == e.mint0 && outputMint == e.mint1
	in1 := inputMint == e.mint1 && outputMint == e.mint0
	if !in0 && !in1 {
		return domain.CPMMRoute{}, common.NewOperationError("cpmm route", pool,
			fmt.Errorf("%w: pool does not trade %s for %s", common.ErrPoolNotFound, inputMint, outputMint))
	}

	authority, err := x.program.Authority()
	if err != nil {
		return domain.CPMMRoute{}, err
	}
	inVault, err := x.program.Vault(pool, inputMint)
	if err != nil {
		return domain.CPMMRoute{}, err
	}
	outVault, err := x.program.Vault(pool, outputMint)
	if err != nil {
		return domain.CPMMRoute{}, err
	}
	observation, err := x.program.Observation(pool)
	if err != nil {
		return domain.CPMMRoute{}, err
	}

	return domain.CPMMRoute{
		Program:      x.program.Program,
		Authority:    authority,
		AmmConfig:    e.config,
		ConfigIndex:  e.index,
		Pool:         pool,
		InputMint:    inputMint,
		OutputMint:   outputMint,
		InputVault:   inVault,
		OutputVault:  outVault,
		Observation:  observation,
		TokenProgram: common.TokenProgramID,
	}, nil
}
