package lambda

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/causality-fw/causality/machine"
)

func TestCheckTypes(t *testing.T) {
	c := qt.New(t)

	intLit := func(i int64) Term { return Lit{Value: machine.Int(i)} }

	tests := []struct {
		name string
		term Term
		want Type
	}{
		{
			name: "unit",
			term: UnitTerm{},
			want: UnitType,
		},
		{
			name: "int literal",
			term: intLit(7),
			want: IntType,
		},
		{
			name: "identity",
			term: Lam{Param: "x", ParamType: IntType, Body: Var{Name: "x"}},
			want: Lolli{A: IntType, B: IntType},
		},
		{
			name: "application",
			term: App{
				Fn:  Lam{Param: "x", ParamType: IntType, Body: Var{Name: "x"}},
				Arg: intLit(1),
			},
			want: IntType,
		},
		{
			name: "pair swap",
			term: Lam{
				Param:     "p",
				ParamType: Tensor{A: IntType, B: BoolType},
				Body: LetPair{
					X: "a", Y: "b", Pair: Var{Name: "p"},
					Body: Pair{First: Var{Name: "b"}, Second: Var{Name: "a"}},
				},
			},
			want: Lolli{A: Tensor{A: IntType, B: BoolType}, B: Tensor{A: BoolType, B: IntType}},
		},
		{
			name: "sum introduction",
			term: Inl{Value: intLit(1), Right: BoolType},
			want: Sum{A: IntType, B: BoolType},
		},
		{
			name: "case elimination",
			term: Case{
				Scrutinee: Inr{Value: UnitTerm{}, Left: UnitType},
				LeftVar:   "a", LeftBody: LetUnit{E: Var{Name: "a"}, Body: Lit{Value: machine.SymbolValue("left")}},
				RightVar: "b", RightBody: LetUnit{E: Var{Name: "b"}, Body: Lit{Value: machine.SymbolValue("right")}},
			},
			want: SymbolType,
		},
		{
			name: "let unit",
			term: LetUnit{E: UnitTerm{}, Body: intLit(3)},
			want: IntType,
		},
	}
	for _, tt := range tests {
		typ, err := Check(tt.term)
		c.Assert(err, qt.IsNil, qt.Commentf("term %s", tt.name))
		c.Assert(typ.Equal(tt.want), qt.IsTrue, qt.Commentf("%s: got %s, want %s", tt.name, typ, tt.want))
	}
}

// A linear tensor component that the body drops is rejected at the
// binder.
func TestUnusedLinearPairComponent(t *testing.T) {
	c := qt.New(t)

	term := Lam{
		Param:     "x",
		ParamType: Tensor{A: IntType, B: BoolType},
		Body: LetPair{
			X: "a", Y: "b", Pair: Var{Name: "x"},
			Body: Var{Name: "a"},
		},
	}

	_, err := Check(term)
	var violation *LinearityViolation
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "b")
	c.Assert(violation.Reason, qt.Equals, Unused)
}

func TestLinearUsedTwice(t *testing.T) {
	c := qt.New(t)

	term := Lam{
		Param:     "x",
		ParamType: IntType,
		Body:      Pair{First: Var{Name: "x"}, Second: Var{Name: "x"}},
	}

	_, err := Check(term)
	var violation *LinearityViolation
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "x")
	c.Assert(violation.Reason, qt.Equals, UsedTwice)
}

func TestLinearNotUsedOnAllBranches(t *testing.T) {
	c := qt.New(t)

	// y is consumed in the left arm only.
	term := Lam{
		Param:     "s",
		ParamType: Sum{A: IntType, B: IntType},
		Body: Lam{
			Param:     "y",
			ParamType: IntType,
			Body: Case{
				Scrutinee: Var{Name: "s"},
				LeftVar:   "a",
				LeftBody:  Pair{First: Var{Name: "a"}, Second: Var{Name: "y"}},
				RightVar:  "b",
				RightBody: Pair{First: Var{Name: "b"}, Second: Lit{Value: machine.Int(0)}},
			},
		},
	}

	_, err := Check(term)
	var violation *LinearityViolation
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "y")
	c.Assert(violation.Reason, qt.Equals, NotUsedOnAllBranches)
}

func TestAffineMayDrop(t *testing.T) {
	c := qt.New(t)

	term := Lam{Param: "x", ParamType: IntType, ParamLin: Affine, Body: UnitTerm{}}
	typ, err := Check(term)
	c.Assert(err, qt.IsNil)
	c.Assert(typ.Equal(Lolli{A: IntType, B: UnitType}), qt.IsTrue)

	// Affine still forbids double use.
	twice := Lam{
		Param: "x", ParamType: IntType, ParamLin: Affine,
		Body: Pair{First: Var{Name: "x"}, Second: Var{Name: "x"}},
	}
	_, err = Check(twice)
	var violation *LinearityViolation
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Reason, qt.Equals, UsedTwice)
}

func TestRelevantMustUse(t *testing.T) {
	c := qt.New(t)

	term := Lam{Param: "x", ParamType: IntType, ParamLin: Relevant, Body: UnitTerm{}}
	_, err := Check(term)
	var violation *LinearityViolation
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Reason, qt.Equals, Unused)

	// Double use is fine for relevant hypotheses.
	twice := Lam{
		Param: "x", ParamType: IntType, ParamLin: Relevant,
		Body: Pair{First: Var{Name: "x"}, Second: Var{Name: "x"}},
	}
	_, err = Check(twice)
	c.Assert(err, qt.IsNil)
}

func TestUnrestrictedUnchecked(t *testing.T) {
	c := qt.New(t)

	dropped := Lam{Param: "x", ParamType: IntType, ParamLin: Unrestricted, Body: UnitTerm{}}
	_, err := Check(dropped)
	c.Assert(err, qt.IsNil)

	twice := Lam{
		Param: "x", ParamType: IntType, ParamLin: Unrestricted,
		Body: Pair{First: Var{Name: "x"}, Second: Var{Name: "x"}},
	}
	_, err = Check(twice)
	c.Assert(err, qt.IsNil)
}

func TestTypeMismatch(t *testing.T) {
	c := qt.New(t)

	// Applying an int as a function.
	_, err := Check(App{Fn: Lit{Value: machine.Int(1)}, Arg: UnitTerm{}})
	var mismatch *TypeMismatch
	c.Assert(errors.As(err, &mismatch), qt.IsTrue)

	// Wrong argument type.
	_, err = Check(App{
		Fn:  Lam{Param: "x", ParamType: IntType, Body: Var{Name: "x"}},
		Arg: Lit{Value: machine.Bool(true)},
	})
	c.Assert(errors.As(err, &mismatch), qt.IsTrue)
	c.Assert(mismatch.Expected.Equal(IntType), qt.IsTrue)
	c.Assert(mismatch.Found.Equal(BoolType), qt.IsTrue)

	// Case arms with different types.
	_, err = Check(Case{
		Scrutinee: Inl{Value: UnitTerm{}, Right: UnitType},
		LeftVar:   "a", LeftBody: Var{Name: "a"},
		RightVar: "b", RightBody: LetUnit{E: Var{Name: "b"}, Body: Lit{Value: machine.Int(1)}},
	})
	c.Assert(errors.As(err, &mismatch), qt.IsTrue)
}

func TestUnboundVariable(t *testing.T) {
	c := qt.New(t)

	_, err := Check(Var{Name: "ghost"})
	c.Assert(errors.Is(err, ErrUnboundVariable), qt.IsTrue)
}

// CheckUsage works on open terms: free variables pass through, binders
// inside the term are still held to their discipline.
func TestCheckUsageOpenTerms(t *testing.T) {
	c := qt.New(t)

	// A free variable is fine without a typing context.
	c.Assert(CheckUsage(Pair{First: Var{Name: "free"}, Second: UnitTerm{}}), qt.IsNil)

	// A linear binder dropped inside an open term is not.
	leaky := Lam{
		Param:     "p",
		ParamType: Tensor{A: IntType, B: IntType},
		Body: LetPair{
			X:    "a",
			Y:    "b",
			Pair: Var{Name: "p"},
			Body: Var{Name: "a"},
		},
	}
	var violation *LinearityViolation
	c.Assert(errors.As(CheckUsage(leaky), &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "b")
	c.Assert(violation.Reason, qt.Equals, Unused)

	// An affine binder may be dropped.
	c.Assert(CheckUsage(Lam{
		Param: "x", ParamType: IntType, ParamLin: Affine,
		Body: UnitTerm{},
	}), qt.IsNil)

	// A case arm binder used on one side only is caught too.
	c.Assert(errors.As(CheckUsage(Case{
		Scrutinee: Var{Name: "s"},
		LeftVar:   "a", LeftBody: Var{Name: "a"},
		RightVar: "b", RightBody: UnitTerm{},
	}), &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "b")
}
