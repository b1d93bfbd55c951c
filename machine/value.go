// Package machine implements the Layer 0 register machine: a minimal
// instruction set executed deterministically over an SMT-backed
// resource and nullifier state, producing an append-only execution
// trace suitable for witness extraction.
package machine

import (
	"fmt"
	"sort"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
)

// RegisterID is a nonnegative register index.
type RegisterID uint32

// Symbol is an interned string. Interning happens at the effect
// dispatch table; at the machine level a Symbol is just its name.
type Symbol string

// SumTag selects a sum variant.
type SumTag uint8

// Sum variant tags.
const (
	TagLeft SumTag = iota
	TagRight
)

func (t SumTag) String() string {
	if t == TagLeft {
		return "left"
	}
	return "right"
}

// Value kind tags, also the canonical enum encoding tags.
const (
	kindUnit byte = iota
	kindBool
	kindInt
	kindSymbol
	kindProduct
	kindSum
	kindClosure
	kindResourceRef
)

// Value is a total, structurally hashable machine value.
type Value interface {
	codec.Encodable
	isValue()
}

// Unit is the unit value.
type Unit struct{}

// Bool is a boolean value.
type Bool bool

// Int is a 64-bit signed integer value.
type Int int64

// SymbolValue is an interned-string value.
type SymbolValue Symbol

// Product is a pair of values.
type Product struct {
	First  Value
	Second Value
}

// SumValue is a tagged value of a sum.
type SumValue struct {
	Tag   SumTag
	Inner Value
}

// Closure is a function value: parameter names, the content identifier
// of its compiled body, and the captured environment.
type Closure struct {
	Params   []Symbol
	Body     types.ExprID
	Captured map[Symbol]Value
}

// ResourceRef is a reference to a resource by identity.
type ResourceRef types.ResourceID

func (Unit) isValue()        {}
func (Bool) isValue()        {}
func (Int) isValue()         {}
func (SymbolValue) isValue() {}
func (Product) isValue()     {}
func (SumValue) isValue()    {}
func (Closure) isValue()     {}
func (ResourceRef) isValue() {}

// EncodeTo implements codec.Encodable.
func (Unit) EncodeTo(e *codec.Encoder) { e.WriteTag(kindUnit) }

// EncodeTo implements codec.Encodable.
func (v Bool) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindBool)
	e.WriteBool(bool(v))
}

// EncodeTo implements codec.Encodable.
func (v Int) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindInt)
	e.WriteInt64(int64(v))
}

// EncodeTo implements codec.Encodable.
func (v SymbolValue) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindSymbol)
	e.WriteString(string(v))
}

// EncodeTo implements codec.Encodable.
func (v Product) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindProduct)
	v.First.EncodeTo(e)
	v.Second.EncodeTo(e)
}

// EncodeTo implements codec.Encodable.
func (v SumValue) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindSum)
	e.WriteUint8(uint8(v.Tag))
	v.Inner.EncodeTo(e)
}

// EncodeTo implements codec.Encodable. The captured environment is
// encoded in sorted symbol order so structurally equal closures hash
// equal.
func (v Closure) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindClosure)
	e.WriteUint32(uint32(len(v.Params)))
	for _, p := range v.Params {
		e.WriteString(string(p))
	}
	e.WriteHash(types.Hash(v.Body))
	names := make([]string, 0, len(v.Captured))
	for name := range v.Captured {
		names = append(names, string(name))
	}
	sort.Strings(names)
	e.WriteUint32(uint32(len(names)))
	for _, name := range names {
		e.WriteString(name)
		v.Captured[Symbol(name)].EncodeTo(e)
	}
}

// EncodeTo implements codec.Encodable.
func (v ResourceRef) EncodeTo(e *codec.Encoder) {
	e.WriteTag(kindResourceRef)
	e.WriteHash(types.Hash(v))
}

// DecodeValue decodes a value from its canonical encoding.
func DecodeValue(d *codec.Decoder) (Value, error) {
	tag, err := d.ReadTag()
	if err != nil {
		return nil, err
	}
	switch tag {
	case kindUnit:
		return Unit{}, nil
	case kindBool:
		b, err := d.ReadBool()
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case kindInt:
		i, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		return Int(i), nil
	case kindSymbol:
		s, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		return SymbolValue(s), nil
	case kindProduct:
		first, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		second, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		return Product{First: first, Second: second}, nil
	case kindSum:
		st, err := d.ReadUint8()
		if err != nil {
			return nil, err
		}
		if st > uint8(TagRight) {
			return nil, fmt.Errorf("machine: invalid sum tag %d", st)
		}
		inner, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		return SumValue{Tag: SumTag(st), Inner: inner}, nil
	case kindClosure:
		nparams, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		var params []Symbol
		for i := uint32(0); i < nparams; i++ {
			s, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			params = append(params, Symbol(s))
		}
		body, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		ncap, err := d.ReadUint32()
		if err != nil {
			return nil, err
		}
		var captured map[Symbol]Value
		if ncap > 0 {
			captured = make(map[Symbol]Value, ncap)
		}
		for i := uint32(0); i < ncap; i++ {
			name, err := d.ReadString()
			if err != nil {
				return nil, err
			}
			val, err := DecodeValue(d)
			if err != nil {
				return nil, err
			}
			captured[Symbol(name)] = val
		}
		return Closure{Params: params, Body: types.ExprID(body), Captured: captured}, nil
	case kindResourceRef:
		h, err := d.ReadHash()
		if err != nil {
			return nil, err
		}
		return ResourceRef(h), nil
	default:
		return nil, fmt.Errorf("machine: unknown value tag %#x", tag)
	}
}

// ValueHash returns the content hash of a value's canonical encoding.
func ValueHash(h hash.Hasher, v Value) types.Hash {
	return hash.ContentID(h, codec.Encode(v))
}

// ValueString renders a value for diagnostics.
func ValueString(v Value) string {
	switch val := v.(type) {
	case Unit:
		return "unit"
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case SymbolValue:
		return string(val)
	case Product:
		return fmt.Sprintf("(%s, %s)", ValueString(val.First), ValueString(val.Second))
	case SumValue:
		return fmt.Sprintf("%s(%s)", val.Tag, ValueString(val.Inner))
	case Closure:
		return fmt.Sprintf("closure/%d %s", len(val.Params), types.Hash(val.Body).Hex()[:10])
	case ResourceRef:
		return fmt.Sprintf("resource %s", types.Hash(val).Hex()[:10])
	default:
		return fmt.Sprintf("%v", v)
	}
}
