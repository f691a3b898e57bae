// Package derive computes program-derived and associated token addresses.
// Everything here is pure: identical inputs always produce identical outputs.
package derive

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

// Find searches bumps from 255 down to 0 and returns the first off-curve
// address. The trailing bump occupies one of the MaxSeeds slots.
func Find(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	if err := validateSeeds(seeds, MaxSeeds-1); err != nil {
		return solana.PublicKey{}, 0, err
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := solana.CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, fmt.Errorf("%w: program %s", common.ErrDerivationExhausted, program)
}

// Create derives an address without a bump search. It fails when the seeds
// land on the curve.
func Create(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, error) {
	if err := validateSeeds(seeds, MaxSeeds); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.CreateProgramAddress(seeds, program)
}

func validateSeeds(seeds [][]byte, maxCount int) error {
	if len(seeds) > maxCount {
		return fmt.Errorf("%w: %d seeds, max %d", common.ErrInvalidSeeds, len(seeds), maxCount)
	}
	for i, s := range seeds {
		if len(s) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes", common.ErrInvalidSeeds, i, len(s))
		}
	}
	return nil
}

func U64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func U32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func U16BE(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
