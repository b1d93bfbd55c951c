// Package lambda implements the Layer 1 linear lambda calculus: typed
// terms, the linearity checker, and lowering to Layer 0 instructions.
package lambda

import "fmt"

// Linearity classes a hypothesis can carry.
type Linearity uint8

// Linearity classes. Linear is the zero value: hypotheses are linear
// unless stated otherwise.
const (
	// Linear variables are consumed exactly once on every path.
	Linear Linearity = iota
	// Affine variables are consumed at most once on every path.
	Affine
	// Relevant variables are consumed at least once on every path.
	Relevant
	// Unrestricted variables are unchecked.
	Unrestricted
)

func (l Linearity) String() string {
	switch l {
	case Linear:
		return "linear"
	case Affine:
		return "affine"
	case Relevant:
		return "relevant"
	case Unrestricted:
		return "unrestricted"
	default:
		return fmt.Sprintf("linearity(%d)", uint8(l))
	}
}

// Type is a Layer 1 type.
type Type interface {
	isType()
	Equal(Type) bool
	String() string
}

// Base is one of the four base types.
type Base uint8

// Base types.
const (
	UnitType Base = iota
	BoolType
	IntType
	SymbolType
)

// Tensor is the multiplicative product A ⊗ B.
type Tensor struct {
	A Type
	B Type
}

// Sum is the additive sum A ⊕ B.
type Sum struct {
	A Type
	B Type
}

// Lolli is the linear function A ⊸ B.
type Lolli struct {
	A Type
	B Type
}

func (Base) isType()   {}
func (Tensor) isType() {}
func (Sum) isType()    {}
func (Lolli) isType()  {}

// Equal implements Type.
func (b Base) Equal(other Type) bool {
	o, ok := other.(Base)
	return ok && b == o
}

// Equal implements Type.
func (t Tensor) Equal(other Type) bool {
	o, ok := other.(Tensor)
	return ok && t.A.Equal(o.A) && t.B.Equal(o.B)
}

// Equal implements Type.
func (s Sum) Equal(other Type) bool {
	o, ok := other.(Sum)
	return ok && s.A.Equal(o.A) && s.B.Equal(o.B)
}

// Equal implements Type.
func (l Lolli) Equal(other Type) bool {
	o, ok := other.(Lolli)
	return ok && l.A.Equal(o.A) && l.B.Equal(o.B)
}

func (b Base) String() string {
	switch b {
	case UnitType:
		return "unit"
	case BoolType:
		return "bool"
	case IntType:
		return "int"
	case SymbolType:
		return "symbol"
	default:
		return fmt.Sprintf("base(%d)", uint8(b))
	}
}

func (t Tensor) String() string { return fmt.Sprintf("(%s * %s)", t.A, t.B) }
func (s Sum) String() string    { return fmt.Sprintf("(%s + %s)", s.A, s.B) }
func (l Lolli) String() string  { return fmt.Sprintf("(%s -o %s)", l.A, l.B) }
