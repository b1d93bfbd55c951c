package lambda

import (
	"fmt"

	"github.com/causality-fw/causality/machine"
)

// Span locates a term in its surface source for diagnostics. The zero
// span means the term was built programmatically.
type Span struct {
	Line uint32
	Col  uint32
}

func (s Span) String() string {
	if s == (Span{}) {
		return "<builtin>"
	}
	return fmt.Sprintf("%d:%d", s.Line, s.Col)
}

// Term is a Layer 1 term.
type Term interface {
	isTerm()
	// Span returns the source location of the term.
	Span() Span
}

// Var is a variable occurrence. Occurrences are where consumption of a
// linear hypothesis is counted.
type Var struct {
	Name string
	Pos  Span
}

// Lit is a base-type literal: machine.Unit, machine.Bool, machine.Int
// or machine.SymbolValue.
type Lit struct {
	Value machine.Value
	Pos   Span
}

// Lam is a lambda abstraction binding one parameter.
type Lam struct {
	Param     string
	ParamType Type
	ParamLin  Linearity
	Body      Term
	Pos       Span
}

// App is a function application.
type App struct {
	Fn  Term
	Arg Term
	Pos Span
}

// Pair is a tensor introduction.
type Pair struct {
	First  Term
	Second Term
	Pos    Span
}

// LetPair is a tensor elimination: let (x, y) = e in body.
type LetPair struct {
	X    string
	Y    string
	Pair Term
	Body Term
	Pos  Span
}

// Inl injects into the left of a sum. The right component type is
// annotated so the term is syntax-directed.
type Inl struct {
	Value Term
	Right Type
	Pos   Span
}

// Inr injects into the right of a sum.
type Inr struct {
	Value Term
	Left  Type
	Pos   Span
}

// Case eliminates a sum with one binder per arm.
type Case struct {
	Scrutinee Term
	LeftVar   string
	LeftBody  Term
	RightVar  string
	RightBody Term
	Pos       Span
}

// UnitTerm is the unit introduction.
type UnitTerm struct {
	Pos Span
}

// LetUnit sequences a unit-typed term: let () = e in body.
type LetUnit struct {
	E    Term
	Body Term
	Pos  Span
}

func (Var) isTerm()      {}
func (Lit) isTerm()      {}
func (Lam) isTerm()      {}
func (App) isTerm()      {}
func (Pair) isTerm()     {}
func (LetPair) isTerm()  {}
func (Inl) isTerm()      {}
func (Inr) isTerm()      {}
func (Case) isTerm()     {}
func (UnitTerm) isTerm() {}
func (LetUnit) isTerm()  {}

// Span implements Term.
func (t Var) Span() Span { return t.Pos }

// Span implements Term.
func (t Lit) Span() Span { return t.Pos }

// Span implements Term.
func (t Lam) Span() Span { return t.Pos }

// Span implements Term.
func (t App) Span() Span { return t.Pos }

// Span implements Term.
func (t Pair) Span() Span { return t.Pos }

// Span implements Term.
func (t LetPair) Span() Span { return t.Pos }

// Span implements Term.
func (t Inl) Span() Span { return t.Pos }

// Span implements Term.
func (t Inr) Span() Span { return t.Pos }

// Span implements Term.
func (t Case) Span() Span { return t.Pos }

// Span implements Term.
func (t UnitTerm) Span() Span { return t.Pos }

// Span implements Term.
func (t LetUnit) Span() Span { return t.Pos }

// LitType returns the base type of a literal value, or an error if the
// value is not a base literal.
func LitType(v machine.Value) (Type, error) {
	switch v.(type) {
	case machine.Unit:
		return UnitType, nil
	case machine.Bool:
		return BoolType, nil
	case machine.Int:
		return IntType, nil
	case machine.SymbolValue:
		return SymbolType, nil
	default:
		return nil, fmt.Errorf("lambda: %s is not a base literal", machine.ValueString(v))
	}
}
