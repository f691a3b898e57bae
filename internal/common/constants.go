// Package common contains common constants and variables used across services
package common

import "github.com/gagliardetto/solana-go"

var (
	TokenProgramID        = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	ATAProgramID          = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SystemProgramID       = solana.SystemProgramID
	RentSysvarID          = solana.SysVarRentPubkey
	WrappedSolMint        = solana.WrappedSol
	AddressLookupTableID  = solana.MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")
	DefaultRaydiumV4ID    = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	DefaultCPSwapID       = solana.MustPublicKeyFromBase58("DRaycpLY18LhpbydsBWbVJtxpNv9oXPgjRSfpF2bWpYb")
	DefaultBlackHoleOwner = solana.SystemProgramID
)

const (
	LookupTableKeyPrefix = "alt_v2_"

	// MaxLookupTableAddresses is the on-chain ceiling of a single table.
	MaxLookupTableAddresses = 256

	// ExtendBatchSize keeps each extend transaction under the packet limit.
	ExtendBatchSize = 20

	DefaultComputeUnitLimit = 500_000

	// HumanScale is the fixed number of fractional digits kept when
	// converting between human and base units.
	HumanScale = 9

	// BlockhashValidity is the number of blocks a blockhash stays usable.
	BlockhashValidity = 150
)
