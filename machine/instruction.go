package machine

import (
	"fmt"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/types"
)

// Instruction opcodes, also the canonical enum encoding tags.
const (
	opConst byte = iota
	opMove
	opApply
	opMakePair
	opFst
	opSnd
	opInject
	opMatch
	opEffectCall
	opConsume
	opProduce
	opConstraint
	opHalt
)

// Instruction is one step of the Layer 0 machine.
type Instruction interface {
	codec.Encodable
	isInstruction()
	String() string
}

// Capture names a register whose value a closure literal captures under
// a variable name when the literal is materialized.
type Capture struct {
	Name Symbol
	Reg  RegisterID
}

// Const writes a literal value to Rd. A closure literal captures the
// listed registers at execution time; the captured environment is
// content-hashed into the resulting closure value.
type Const struct {
	Rd       RegisterID
	Lit      Value
	Captures []Capture
}

// Move copies register Rs to Rd.
type Move struct {
	Rd RegisterID
	Rs RegisterID
}

// Apply applies the closure in Rf to the value in Ra, writing the
// result to Rd.
type Apply struct {
	Rd RegisterID
	Rf RegisterID
	Ra RegisterID
}

// MakePair writes Product(Ra, Rb) to Rd.
type MakePair struct {
	Rd RegisterID
	Ra RegisterID
	Rb RegisterID
}

// Fst projects the first component of the pair in Rs into Rd.
type Fst struct {
	Rd RegisterID
	Rs RegisterID
}

// Snd projects the second component of the pair in Rs into Rd.
type Snd struct {
	Rd RegisterID
	Rs RegisterID
}

// Inject wraps the value in Rs as a sum with the given tag into Rd.
type Inject struct {
	Rd  RegisterID
	Tag SumTag
	Rs  RegisterID
}

// Match branches on the sum tag in Rs: Left jumps to PCLeft, Right to
// PCRight. The payload is written to Rd before the jump.
type Match struct {
	Rs      RegisterID
	Rd      RegisterID
	PCLeft  uint32
	PCRight uint32
}

// EffectCall invokes an effect operation. The machine suspends until
// the resolving handler returns a value, which is written to Rd.
type EffectCall struct {
	Rd   RegisterID
	Tag  Symbol
	Args []RegisterID
}

// Consume retires the resource referenced by Rs: its payload is written
// to RdPayload and its nullifier (as a 32-byte-hash product encoding)
// to RdNullifier. Fails if the resource is missing or already consumed.
type Consume struct {
	Rs          RegisterID
	RdPayload   RegisterID
	RdNullifier RegisterID
}

// Produce creates a resource with the given fields, the payload taken
// from PayloadReg, and writes its id to Rd as a ResourceRef.
type Produce struct {
	Rd           RegisterID
	ResourceType Symbol
	Quantity     uint64
	Domain       types.DomainID
	Seed         [32]byte
	PayloadReg   RegisterID
}

// Constraint evaluates the boolean in Rs; on false, execution branches
// to OnFailPC. Every evaluation is recorded in the trace.
type Constraint struct {
	Rs       RegisterID
	OnFailPC uint32
}

// Halt terminates execution.
type Halt struct{}

func (Const) isInstruction()      {}
func (Move) isInstruction()       {}
func (Apply) isInstruction()      {}
func (MakePair) isInstruction()   {}
func (Fst) isInstruction()        {}
func (Snd) isInstruction()        {}
func (Inject) isInstruction()     {}
func (Match) isInstruction()      {}
func (EffectCall) isInstruction() {}
func (Consume) isInstruction()    {}
func (Produce) isInstruction()    {}
func (Constraint) isInstruction() {}
func (Halt) isInstruction()       {}

func (i Const) String() string {
	if len(i.Captures) > 0 {
		return fmt.Sprintf("const r%d, %s (captures %d)", i.Rd, ValueString(i.Lit), len(i.Captures))
	}
	return fmt.Sprintf("const r%d, %s", i.Rd, ValueString(i.Lit))
}
func (i Move) String() string     { return fmt.Sprintf("move r%d, r%d", i.Rd, i.Rs) }
func (i Apply) String() string    { return fmt.Sprintf("apply r%d, r%d, r%d", i.Rd, i.Rf, i.Ra) }
func (i MakePair) String() string { return fmt.Sprintf("pair r%d, r%d, r%d", i.Rd, i.Ra, i.Rb) }
func (i Fst) String() string      { return fmt.Sprintf("fst r%d, r%d", i.Rd, i.Rs) }
func (i Snd) String() string      { return fmt.Sprintf("snd r%d, r%d", i.Rd, i.Rs) }
func (i Inject) String() string {
	return fmt.Sprintf("inject r%d, %s, r%d", i.Rd, i.Tag, i.Rs)
}
func (i Match) String() string {
	return fmt.Sprintf("match r%d -> r%d, @%d, @%d", i.Rs, i.Rd, i.PCLeft, i.PCRight)
}
func (i EffectCall) String() string {
	return fmt.Sprintf("effect r%d, %q/%d", i.Rd, string(i.Tag), len(i.Args))
}
func (i Consume) String() string {
	return fmt.Sprintf("consume r%d -> (r%d, r%d)", i.Rs, i.RdPayload, i.RdNullifier)
}
func (i Produce) String() string {
	return fmt.Sprintf("produce r%d, %q qty=%d", i.Rd, string(i.ResourceType), i.Quantity)
}
func (i Constraint) String() string {
	return fmt.Sprintf("constraint r%d, @%d", i.Rs, i.OnFailPC)
}
func (Halt) String() string { return "halt" }

// EncodeTo implements codec.Encodable.
func (i Const) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opConst)
	e.WriteUint32(uint32(i.Rd))
	i.Lit.EncodeTo(e)
	e.WriteUint32(uint32(len(i.Captures)))
	for _, cap := range i.Captures {
		e.WriteString(string(cap.Name))
		e.WriteUint32(uint32(cap.Reg))
	}
}

// EncodeTo implements codec.Encodable.
func (i Move) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opMove)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(uint32(i.Rs))
}

// EncodeTo implements codec.Encodable.
func (i Apply) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opApply)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(uint32(i.Rf))
	e.WriteUint32(uint32(i.Ra))
}

// EncodeTo implements codec.Encodable.
func (i MakePair) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opMakePair)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(uint32(i.Ra))
	e.WriteUint32(uint32(i.Rb))
}

// EncodeTo implements codec.Encodable.
func (i Fst) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opFst)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(uint32(i.Rs))
}

// EncodeTo implements codec.Encodable.
func (i Snd) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opSnd)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(uint32(i.Rs))
}

// EncodeTo implements codec.Encodable.
func (i Inject) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opInject)
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint8(uint8(i.Tag))
	e.WriteUint32(uint32(i.Rs))
}

// EncodeTo implements codec.Encodable.
func (i Match) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opMatch)
	e.WriteUint32(uint32(i.Rs))
	e.WriteUint32(uint32(i.Rd))
	e.WriteUint32(i.PCLeft)
	e.WriteUint32(i.PCRight)
}

// EncodeTo implements codec.Encodable.
func (i EffectCall) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opEffectCall)
	e.WriteUint32(uint32(i.Rd))
	e.WriteString(string(i.Tag))
	e.WriteUint32(uint32(len(i.Args)))
	for _, a := range i.Args {
		e.WriteUint32(uint32(a))
	}
}

// EncodeTo implements codec.Encodable.
func (i Consume) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opConsume)
	e.WriteUint32(uint32(i.Rs))
	e.WriteUint32(uint32(i.RdPayload))
	e.WriteUint32(uint32(i.RdNullifier))
}

// EncodeTo implements codec.Encodable.
func (i Produce) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opProduce)
	e.WriteUint32(uint32(i.Rd))
	e.WriteString(string(i.ResourceType))
	e.WriteUint64(i.Quantity)
	e.WriteHash(types.Hash(i.Domain))
	e.WriteFixed(i.Seed[:])
	e.WriteUint32(uint32(i.PayloadReg))
}

// EncodeTo implements codec.Encodable.
func (i Constraint) EncodeTo(e *codec.Encoder) {
	e.WriteTag(opConstraint)
	e.WriteUint32(uint32(i.Rs))
	e.WriteUint32(i.OnFailPC)
}

// EncodeTo implements codec.Encodable.
func (Halt) EncodeTo(e *codec.Encoder) { e.WriteTag(opHalt) }

// DecodeInstruction decodes one instruction from its canonical
// encoding.
func DecodeInstruction(d *codec.Decoder) (Instruction, error) {
	op, err := d.ReadTag()
	if err != nil {
		return nil, err
	}
	readReg := func() (RegisterID, error) {
		r, err := d.ReadUint32()
		return RegisterID(r), err
	}
	switch op {
	case opConst:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		lit, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		ncap, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		captures := make([]Capture, ncap)
		for j := range captures {
			name, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			reg, err := readReg()
			if err != nil {
				return nil, err
			}
			captures[j] = Capture{Name: Symbol(name), Reg: reg}
		}
		if len(captures) == 0 {
			captures = nil
		}
		return Const{Rd: rd, Lit: lit, Captures: captures}, nil
	case opMove:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		return Move{Rd: rd, Rs: rs}, nil
	case opApply:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		rf, err := readReg()
		if err != nil {
			return nil, err
		}
		ra, err := readReg()
		if err != nil {
			return nil, err
		}
		return Apply{Rd: rd, Rf: rf, Ra: ra}, nil
	case opMakePair:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		ra, err := readReg()
		if err != nil {
			return nil, err
		}
		rb, err := readReg()
		if err != nil {
			return nil, err
		}
		return MakePair{Rd: rd, Ra: ra, Rb: rb}, nil
	case opFst:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		return Fst{Rd: rd, Rs: rs}, nil
	case opSnd:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		return Snd{Rd: rd, Rs: rs}, nil
	case opInject:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		tag, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		if tag > uint8(TagRight) {
			return nil, fmt.Errorf("machine: invalid inject tag %d", tag)
		}
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		return Inject{Rd: rd, Tag: SumTag(tag), Rs: rs}, nil
	case opMatch:
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		pcLeft, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		pcRight, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		return Match{Rs: rs, Rd: rd, PCLeft: pcLeft, PCRight: pcRight}, nil
	case opEffectCall:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		tag, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		nargs, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		var args []RegisterID
		for j := uint32(0); j < nargs; j++ {
			a, err := readReg()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
		}
		return EffectCall{Rd: rd, Tag: Symbol(tag), Args: args}, nil
	case opConsume:
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		rdPayload, err := readReg()
		if err != nil {
			return nil, err
		}
		rdNullifier, err := readReg()
		if err != nil {
			return nil, err
		}
		return Consume{Rs: rs, RdPayload: rdPayload, RdNullifier: rdNullifier}, nil
	case opProduce:
		rd, err := readReg()
		if err != nil {
			return nil, err
		}
		rt, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		qty, err := d.ReadUint64()
		if err != nil {
			return nil, err
		}
		domain, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		seed, err := d.ReadFixed(32)
		if err != nil {
			return nil, err
		}
		payloadReg, err := readReg()
		if err != nil {
			return nil, err
		}
		p := Produce{
			Rd:           rd,
			ResourceType: Symbol(rt),
			Quantity:     qty,
			Domain:       types.DomainID(domain),
			PayloadReg:   payloadReg,
		}
		copy(p.Seed[:], seed)
		return p, nil
	case opConstraint:
		rs, err := readReg()
		if err != nil {
			return nil, err
		}
		onFail, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		return Constraint{Rs: rs, OnFailPC: onFail}, nil
	case opHalt:
		return Halt{}, nil
	default:
		return nil, fmt.Errorf("machine: unknown opcode %#x", op)
	}
}
