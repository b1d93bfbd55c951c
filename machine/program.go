package machine

import (
	"sort"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

// Function is a compiled closure body. Frame convention: parameters
// occupy registers 0..n-1, captured variables (sorted by name) the
// registers right after; the result is read from Result.
type Function struct {
	Code   []Instruction
	Result RegisterID
}

// Program is a compiled instruction sequence plus the bodies of every
// closure it can apply, keyed by expression identifier.
type Program struct {
	Instructions []Instruction
	Functions    map[types.ExprID]Function
}

// EncodeTo implements codec.Encodable. Functions are encoded in sorted
// identifier order so equal programs encode equal.
func (p *Program) EncodeTo(e *codec.Encoder) {
	e.WriteUint32(uint32(len(p.Instructions)))
	for _, ins := range p.Instructions {
		ins.EncodeTo(e)
	}
	ids := make([]types.ExprID, 0, len(p.Functions))
	for id := range p.Functions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	e.WriteUint32(uint32(len(ids)))
	for _, id := range ids {
		e.WriteHash(types.Hash(id))
		fn := p.Functions[id]
		e.WriteUint32(uint32(len(fn.Code)))
		for _, ins := range fn.Code {
			ins.EncodeTo(e)
		}
		e.WriteUint32(uint32(fn.Result))
	}
}

// DecodeProgram decodes a program from its canonical encoding.
func DecodeProgram(d *codec.Decoder) (*Program, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	p := &Program{}
	for i := uint32(0); i < n; i++ {
		ins, err := DecodeInstruction(d)
		if err != nil {
			return nil, err
		}
		p.Instructions = append(p.Instructions, ins)
	}
	nfuncs, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if nfuncs > 0 {
		p.Functions = make(map[types.ExprID]Function, nfuncs)
	}
	for i := uint32(0); i < nfuncs; i++ {
		id, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		nbody, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		var body []Instruction
		for j := uint32(0); j < nbody; j++ {
			ins, err := DecodeInstruction(d)
			if err != nil {
				return nil, err
			}
			body = append(body, ins)
		}
		result, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		p.Functions[types.ExprID(id)] = Function{Code: body, Result: RegisterID(result)}
	}
	return p, nil
}

// ID derives the program identifier. The hasher name is part of the
// preimage, so the hash-function choice is bound into the identity.
func (p *Program) ID(h hash.Hasher) types.ProgramID {
	e := codec.NewEncoder()
	e.WriteString(h.Name())
	p.EncodeTo(e)
	return types.ProgramID(h.Sum(e.Bytes()))
}
