package machine

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

func TestValueRoundTrip(t *testing.T) {
	c := qt.New(t)

	bodyID := types.ExprID(hash.Default().Sum([]byte("body")))
	values := []Value{
		Unit{},
		Bool(true),
		Bool(false),
		Int(-1),
		Int(1 << 40),
		SymbolValue("coin"),
		Product{First: Int(1), Second: Product{First: Unit{}, Second: Bool(true)}},
		SumValue{Tag: TagLeft, Inner: Int(7)},
		SumValue{Tag: TagRight, Inner: Unit{}},
		Closure{
			Params:   []Symbol{"x"},
			Body:     bodyID,
			Captured: map[Symbol]Value{"y": Int(3), "z": Unit{}},
		},
		ResourceRef(hash.Default().Sum([]byte("resource"))),
	}

	for _, v := range values {
		enc := codec.Encode(v)
		d := codec.NewDecoder(enc)
		decoded, err := DecodeValue(d)
		c.Assert(err, qt.IsNil, qt.Commentf("value %s", ValueString(v)))
		c.Assert(d.Finish(), qt.IsNil)
		c.Assert(decoded, qt.DeepEquals, v)
		// Hashing the canonical encoding is stable.
		c.Assert(ValueHash(hash.Default(), decoded), qt.Equals, ValueHash(hash.Default(), v))
	}
}

func TestClosureHashIgnoresCaptureOrder(t *testing.T) {
	c := qt.New(t)

	a := Closure{Params: []Symbol{"x"}, Captured: map[Symbol]Value{"a": Int(1), "b": Int(2)}}
	b := Closure{Params: []Symbol{"x"}, Captured: map[Symbol]Value{"b": Int(2), "a": Int(1)}}
	c.Assert(ValueHash(hash.Default(), a), qt.Equals, ValueHash(hash.Default(), b))
}

func TestInstructionRoundTrip(t *testing.T) {
	c := qt.New(t)

	fnID := types.ExprID(hash.Default().Sum([]byte("fn body")))
	domain := types.DomainID(hash.Default().Sum([]byte("domain")))
	var seed [32]byte
	copy(seed[:], []byte("seed"))

	instructions := []Instruction{
		Const{Rd: 0, Lit: Int(7)},
		Const{Rd: 1, Lit: Closure{Params: []Symbol{"x"}, Body: fnID}, Captures: []Capture{{Name: "y", Reg: 5}}},
		Move{Rd: 1, Rs: 0},
		Apply{Rd: 2, Rf: 1, Ra: 0},
		MakePair{Rd: 3, Ra: 0, Rb: 1},
		Fst{Rd: 4, Rs: 3},
		Snd{Rd: 5, Rs: 3},
		Inject{Rd: 6, Tag: TagRight, Rs: 0},
		Match{Rs: 6, Rd: 7, PCLeft: 9, PCRight: 11},
		EffectCall{Rd: 8, Tag: "log", Args: []RegisterID{0, 1}},
		Consume{Rs: 6, RdPayload: 9, RdNullifier: 10},
		Produce{Rd: 11, ResourceType: "coin", Quantity: 5, Domain: domain, Seed: seed, PayloadReg: 0},
		Constraint{Rs: 0, OnFailPC: NoFailPC},
		Halt{},
	}

	for _, ins := range instructions {
		enc := codec.Encode(ins)
		d := codec.NewDecoder(enc)
		decoded, err := DecodeInstruction(d)
		c.Assert(err, qt.IsNil, qt.Commentf("instruction %s", ins))
		c.Assert(d.Finish(), qt.IsNil)
		c.Assert(decoded, qt.DeepEquals, ins)
	}
}

func TestProgramIDBindsHasher(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{Const{Rd: 0, Lit: Int(1)}, Halt{}},
		Functions: map[types.ExprID]Function{
			types.ExprID(hash.Default().Sum([]byte("f"))): {Code: []Instruction{Halt{}}, Result: 0},
		},
	}

	idSha := program.ID(hash.Default())
	c.Assert(idSha, qt.Equals, program.ID(hash.Default()))

	mimc, err := hash.ByName("mimc_bn254")
	c.Assert(err, qt.IsNil)
	c.Assert(program.ID(mimc), qt.Not(qt.Equals), idSha)
}

func TestProgramRoundTrip(t *testing.T) {
	c := qt.New(t)

	fnID := types.ExprID(hash.Default().Sum([]byte("fn")))
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Closure{Params: []Symbol{"x"}, Body: fnID}},
			Halt{},
		},
		Functions: map[types.ExprID]Function{
			fnID: {Code: []Instruction{Move{Rd: 1, Rs: 0}}, Result: 1},
		},
	}

	enc := codec.Encode(program)
	d := codec.NewDecoder(enc)
	decoded, err := DecodeProgram(d)
	c.Assert(err, qt.IsNil)
	c.Assert(d.Finish(), qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, program)
	c.Assert(codec.Encode(decoded), qt.DeepEquals, enc)
}
