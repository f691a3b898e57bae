// Package schema loads the interface descriptions of the on-chain programs
// and builds instructions whose account order follows them exactly.
package schema

import (
	"embed"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/gjson"

	"github.com/hxuan190/ledger-orchestrator/internal/common"
	"github.com/hxuan190/ledger-orchestrator/internal/domain"
)

//go:embed idl/dev/*.json idl/prod/*.json
var idlFS embed.FS

type Program string

const (
	Crowdfunding Program = "crowdfunding"
	NFTMining    Program = "nft"
	Staking      Program = "staking"
	Vesting      Program = "vesting"
)

var Programs = []Program{Crowdfunding, NFTMining, Staking, Vesting}

type programSchema struct {
	name         string
	address      solana.PublicKey
	instructions map[string]*Instruction
}

// Registry holds the parsed schemas of one environment set.
type Registry struct {
	env      string
	programs map[Program]*programSchema
}

// Load parses the embedded set for env ("dev" or "prod"). A non-zero
// override replaces the program address carried by the schema.
func Load(env string, overrides map[Program]solana.PublicKey) (*Registry, error) {
	r := &Registry{env: env, programs: make(map[Program]*programSchema, len(Programs))}
	for _, p := range Programs {
		data, err := idlFS.ReadFile(path.Join("idl", env, string(p)+".json"))
		if err != nil {
			return nil, fmt.Errorf("schema set %q: %w", env, err)
		}
		ps, err := parseProgram(p, data)
		if err != nil {
			return nil, fmt.Errorf("schema %s/%s: %w", env, p, err)
		}
		if o, ok := overrides[p]; ok && !o.IsZero() {
			ps.address = o
		}
		for _, ix := range ps.instructions {
			ix.ProgramID = ps.address
		}
		r.programs[p] = ps
	}
	return r, nil
}

func (r *Registry) Env() string {
	return r.env
}

// Address returns the program id, zero when neither the schema nor the
// configuration provides one.
func (r *Registry) Address(p Program) solana.PublicKey {
	if ps, ok := r.programs[p]; ok {
		return ps.address
	}
	return solana.PublicKey{}
}

func (r *Registry) Instruction(p Program, name string) (*Instruction, error) {
	ps, ok := r.programs[p]
	if !ok {
		return nil, fmt.Errorf("%w: unknown program %s", common.ErrSchemaMismatch, p)
	}
	if ps.address.IsZero() {
		return nil, fmt.Errorf("%w: no address configured for program %s", common.ErrPrerequisiteStateMissing, p)
	}
	ix, ok := ps.instructions[name]
	if !ok {
		return nil, fmt.Errorf("%w: program %s has no instruction %s", common.ErrSchemaMismatch, p, name)
	}
	return ix, nil
}

func parseProgram(p Program, data []byte) (*programSchema, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json")
	}
	doc := gjson.ParseBytes(data)

	ps := &programSchema{
		name:         doc.Get("metadata.name").String(),
		instructions: make(map[string]*Instruction),
	}
	if raw := doc.Get("address").String(); raw != "" {
		addr, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("address: %w", err)
		}
		ps.address = addr
	}

	enums := make(map[string][]string)
	for _, t := range doc.Get("types").Array() {
		if t.Get("type.kind").String() != "enum" {
			continue
		}
		var variants []string
		for _, v := range t.Get("type.variants.#.name").Array() {
			variants = append(variants, v.String())
		}
		enums[t.Get("name").String()] = variants
	}

	var parseErr error
	doc.Get("instructions").ForEach(func(_, raw gjson.Result) bool {
		ix, err := parseInstruction(p, raw, enums)
		if err != nil {
			parseErr = err
			return false
		}
		ps.instructions[ix.Name] = ix
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(ps.instructions) == 0 {
		return nil, fmt.Errorf("no instructions")
	}
	return ps, nil
}

func parseInstruction(p Program, raw gjson.Result, enums map[string][]string) (*Instruction, error) {
	ix := &Instruction{Program: p, Name: raw.Get("name").String()}
	if ix.Name == "" {
		return nil, fmt.Errorf("instruction without name")
	}

	if d := raw.Get("discriminator").Array(); len(d) > 0 {
		if len(d) != len(ix.Discriminator) {
			return nil, fmt.Errorf("%s: discriminator has %d bytes", ix.Name, len(d))
		}
		for i, b := range d {
			ix.Discriminator[i] = byte(b.Uint())
		}
	} else {
		ix.Discriminator = domain.InstructionDiscriminator(snakeCase(ix.Name))
	}

	roles, err := parseRoles("", raw.Get("accounts"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ix.Name, err)
	}
	ix.Roles = roles

	for _, a := range raw.Get("args").Array() {
		arg, err := parseArg(a, enums)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ix.Name, err)
		}
		ix.Args = append(ix.Args, arg)
	}
	return ix, nil
}

// parseRoles flattens composite account groups into "group.role" names,
// keeping declaration order.
func parseRoles(prefix string, accounts gjson.Result) ([]Role, error) {
	var out []Role
	for _, a := range accounts.Array() {
		name := prefix + a.Get("name").String()
		if nested := a.Get("accounts"); nested.Exists() {
			group, err := parseRoles(name+".", nested)
			if err != nil {
				return nil, err
			}
			out = append(out, group...)
			continue
		}
		role := Role{
			Name:     name,
			Writable: a.Get("writable").Bool(),
			Signer:   a.Get("signer").Bool(),
			Optional: a.Get("optional").Bool(),
		}
		if fixed := a.Get("address").String(); fixed != "" {
			addr, err := solana.PublicKeyFromBase58(fixed)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", name, err)
			}
			role.Address = addr
		}
		out = append(out, role)
	}
	return out, nil
}

func parseArg(a gjson.Result, enums map[string][]string) (Arg, error) {
	arg := Arg{Name: a.Get("name").String()}
	t := a.Get("type")
	if t.Type == gjson.String {
		kind, ok := primitiveKinds[t.String()]
		if !ok {
			return arg, fmt.Errorf("arg %s: unsupported type %s", arg.Name, t.String())
		}
		arg.Kind = kind
		return arg, nil
	}

	defined := t.Get("defined.name").String()
	if defined == "" {
		defined = t.Get("defined").String()
	}
	variants, ok := enums[defined]
	if !ok {
		return arg, fmt.Errorf("arg %s: unsupported type %s", arg.Name, t.Raw)
	}
	arg.Kind = ArgEnum
	arg.Variants = variants
	return arg, nil
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
