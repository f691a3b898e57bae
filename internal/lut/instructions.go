package lut

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

const (
	commandCreateLookupTable uint32 = iota
	commandFreezeLookupTable
	commandExtendLookupTable
	commandDeactivateLookupTable
	commandCloseLookupTable
)

func tableAccounts(table, authority solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.Meta(table).WRITE(),
		solana.Meta(authority).SIGNER(),
		solana.Meta(authority).WRITE().SIGNER(),
		solana.Meta(common.SystemProgramID),
	}
}

// CreateInstruction creates table for authority at recentSlot; authority
// also pays.
func CreateInstruction(table, authority solana.PublicKey, recentSlot uint64, bump uint8) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint32(commandCreateLookupTable, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(recentSlot, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(bump); err != nil {
		return nil, err
	}
	return solana.NewInstruction(common.AddressLookupTableID, tableAccounts(table, authority), buf.Bytes()), nil
}

func ExtendInstruction(table, authority solana.PublicKey, addresses []solana.PublicKey) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteUint32(commandExtendLookupTable, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(uint64(len(addresses)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for _, a := range addresses {
		if err := enc.WriteBytes(a[:], false); err != nil {
			return nil, err
		}
	}
	return solana.NewInstruction(common.AddressLookupTableID, tableAccounts(table, authority), buf.Bytes()), nil
}
