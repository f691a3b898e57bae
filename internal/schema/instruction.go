package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
)

type ArgKind uint8

const (
	ArgU8 ArgKind = iota
	ArgU16
	ArgU32
	ArgU64
	ArgI64
	ArgBool
	ArgPubkey
	ArgEnum
)

var primitiveKinds = map[string]ArgKind{
	"u8":     ArgU8,
	"u16":    ArgU16,
	"u32":    ArgU32,
	"u64":    ArgU64,
	"i64":    ArgI64,
	"bool":   ArgBool,
	"pubkey": ArgPubkey,
}

type Arg struct {
	Name     string
	Kind     ArgKind
	Variants []string
}

// Role is one account slot of an instruction. Address is set for slots the
// program pins to a fixed account.
type Role struct {
	Name     string
	Writable bool
	Signer   bool
	Optional bool
	Address  solana.PublicKey
}

func (r Role) Fixed() bool {
	return !r.Address.IsZero()
}

type Instruction struct {
	Program       Program
	ProgramID     solana.PublicKey
	Name          string
	Discriminator [8]byte
	Roles         []Role
	Args          []Arg
}

// Accounts maps role names to addresses. Composite groups use "group.role".
type Accounts map[string]solana.PublicKey

// Build orders accounts by the schema and encodes args after the
// discriminator. Every non-fixed role must be supplied and no unknown role
// may be; a fixed role may be omitted but not contradicted.
func (ix *Instruction) Build(accounts Accounts, args ...any) (solana.Instruction, error) {
	metas, err := ix.Metas(accounts)
	if err != nil {
		return nil, err
	}
	data, err := ix.Encode(args...)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(ix.ProgramID, metas, data), nil
}

func (ix *Instruction) mismatch(format string, a ...any) error {
	return fmt.Errorf("%w: %s.%s: %s", common.ErrSchemaMismatch, ix.Program, ix.Name, fmt.Sprintf(format, a...))
}

func (ix *Instruction) Metas(accounts Accounts) (solana.AccountMetaSlice, error) {
	known := make(map[string]struct{}, len(ix.Roles))
	metas := make(solana.AccountMetaSlice, 0, len(ix.Roles))
	for _, role := range ix.Roles {
		known[role.Name] = struct{}{}
		key, ok := accounts[role.Name]
		switch {
		case role.Fixed():
			if ok && key != role.Address {
				return nil, ix.mismatch("role %s must be %s, got %s", role.Name, role.Address, key)
			}
			key = role.Address
		case !ok || key.IsZero():
			if !role.Optional {
				return nil, ix.mismatch("missing account for role %s", role.Name)
			}
			// absent optional accounts are passed as the program id
			key = ix.ProgramID
		}
		metas = append(metas, &solana.AccountMeta{
			PublicKey:  key,
			IsWritable: role.Writable,
			IsSigner:   role.Signer,
		})
	}

	var unknown []string
	for name := range accounts {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, ix.mismatch("unknown role %s", unknown[0])
	}
	return metas, nil
}

func (ix *Instruction) Encode(args ...any) ([]byte, error) {
	if len(args) != len(ix.Args) {
		return nil, ix.mismatch("%d args given, %d expected", len(args), len(ix.Args))
	}

	var buf bytes.Buffer
	buf.Write(ix.Discriminator[:])
	enc := bin.NewBorshEncoder(&buf)
	for i, spec := range ix.Args {
		if err := ix.encodeArg(enc, spec, args[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (ix *Instruction) encodeArg(enc *bin.Encoder, spec Arg, v any) error {
	wrongType := func() error {
		return ix.mismatch("arg %s: unexpected %T", spec.Name, v)
	}
	switch spec.Kind {
	case ArgU8:
		x, ok := v.(uint8)
		if !ok {
			return wrongType()
		}
		return enc.WriteUint8(x)
	case ArgU16:
		x, ok := v.(uint16)
		if !ok {
			return wrongType()
		}
		return enc.WriteUint16(x, binary.LittleEndian)
	case ArgU32:
		x, ok := v.(uint32)
		if !ok {
			return wrongType()
		}
		return enc.WriteUint32(x, binary.LittleEndian)
	case ArgU64:
		x, ok := v.(uint64)
		if !ok {
			return wrongType()
		}
		return enc.WriteUint64(x, binary.LittleEndian)
	case ArgI64:
		x, ok := v.(int64)
		if !ok {
			return wrongType()
		}
		return enc.WriteInt64(x, binary.LittleEndian)
	case ArgBool:
		x, ok := v.(bool)
		if !ok {
			return wrongType()
		}
		return enc.WriteBool(x)
	case ArgPubkey:
		x, ok := v.(solana.PublicKey)
		if !ok {
			return wrongType()
		}
		return enc.WriteBytes(x[:], false)
	case ArgEnum:
		idx, err := variantIndex(spec, v)
		if err != nil {
			return ix.mismatch("arg %s: %v", spec.Name, err)
		}
		return enc.WriteUint8(idx)
	}
	return wrongType()
}

// variantIndex accepts a variant name or its index.
func variantIndex(spec Arg, v any) (uint8, error) {
	switch x := v.(type) {
	case string:
		for i, name := range spec.Variants {
			if name == x {
				return uint8(i), nil
			}
		}
		return 0, fmt.Errorf("no variant %q", x)
	case uint8:
		if int(x) < len(spec.Variants) {
			return x, nil
		}
		return 0, fmt.Errorf("variant %d out of range", x)
	}
	return 0, fmt.Errorf("unexpected %T", v)
}
