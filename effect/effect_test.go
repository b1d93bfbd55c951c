package effect

import (
	"context"
	"errors"
	"math"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/machine"
)

func intLit(i int64) lambda.Term { return lambda.Lit{Value: machine.Int(i)} }

func symLit(s string) lambda.Term { return lambda.Lit{Value: machine.SymbolValue(s)} }

func constHandler(name string, v machine.Value) Handler {
	return Func(name, func(context.Context, []machine.Value) (machine.Value, error) {
		return v, nil
	})
}

// runProgram executes a lowered effect program against a registry.
func runProgram(t *testing.T, registry *Registry, p *Program) (*machine.Machine, *machine.Result, error) {
	t.Helper()
	m, err := machine.New(metadb.NewTest(t), p.Machine, machine.RunOptions{Dispatcher: registry})
	qt.Assert(t, err, qt.IsNil)
	registry.InstallScopes(p.Scopes)
	res, err := m.Run(context.Background())
	return m, res, err
}

// Perform("log", [42]) with the core handlers: one Effect event, Unit
// result.
func TestPerformDispatch(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.RegisterCore()
	compiler := NewCompiler(nil, registry)

	p, err := compiler.Compile(Perform{Op: "log", Args: []lambda.Term{intLit(42)}})
	c.Assert(err, qt.IsNil)

	m, res, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)

	v, ok := m.Register(p.Result)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, machine.Value(machine.Unit{}))

	effects := 0
	for _, ev := range res.Trace.Events() {
		if ev.IsEffect() {
			effects++
			c.Assert(ev.Tag, qt.Equals, machine.Symbol("log"))
			c.Assert(ev.ResultHash, qt.Equals, machine.ValueHash(hash.Default(), machine.Unit{}))
		}
	}
	c.Assert(effects, qt.Equals, 1)
}

func TestHandlerMissing(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	compiler := NewCompiler(nil, registry)

	p, err := compiler.Compile(Perform{Op: "nope"})
	c.Assert(err, qt.IsNil)

	_, _, err = runProgram(t, registry, p)
	c.Assert(errors.Is(err, machine.ErrHandlerMissing), qt.IsTrue)
}

// A Handle scope shadows the base binding inside and restores it after.
func TestHandleScoping(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.Register("query", constHandler("query/base", machine.Int(1)))
	compiler := NewCompiler(nil, registry)

	expr := Bind{
		E: Handle{
			E:       Perform{Op: "query"},
			Clauses: []Clause{{Op: "query", Handler: constHandler("query/scoped", machine.Int(2))}},
		},
		Var: "inner",
		K: Bind{
			E:   Perform{Op: "query"},
			Var: "outer",
			K: Pure{Term: lambda.Pair{
				First:  lambda.Var{Name: "inner"},
				Second: lambda.Var{Name: "outer"},
			}},
		},
	}
	p, err := compiler.Compile(expr)
	c.Assert(err, qt.IsNil)
	c.Assert(p.Scopes, qt.HasLen, 1)

	m, _, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)

	v, ok := m.Register(p.Result)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.DeepEquals, machine.Value(machine.Product{First: machine.Int(2), Second: machine.Int(1)}))
}

// Nested scopes resolve innermost-first.
func TestNestedHandleInnermostWins(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	compiler := NewCompiler(nil, registry)

	expr := Handle{
		E: Handle{
			E:       Perform{Op: "query"},
			Clauses: []Clause{{Op: "query", Handler: constHandler("query/inner", machine.Int(20))}},
		},
		Clauses: []Clause{{Op: "query", Handler: constHandler("query/outer", machine.Int(10))}},
	}
	p, err := compiler.Compile(expr)
	c.Assert(err, qt.IsNil)

	m, _, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)

	v, ok := m.Register(p.Result)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, machine.Value(machine.Int(20)))
}

func TestBindLinearity(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.RegisterCore()
	compiler := NewCompiler(nil, registry)

	var violation *lambda.LinearityViolation

	// Unused bind variable.
	_, err := compiler.Compile(Bind{
		E:   Perform{Op: "log"},
		Var: "x",
		K:   Pure{Term: lambda.UnitTerm{}},
	})
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "x")
	c.Assert(violation.Reason, qt.Equals, lambda.Unused)

	// Double use.
	_, err = compiler.Compile(Bind{
		E:   Perform{Op: "log"},
		Var: "x",
		K: Pure{Term: lambda.Pair{
			First:  lambda.Var{Name: "x"},
			Second: lambda.Var{Name: "x"},
		}},
	})
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Reason, qt.Equals, lambda.UsedTwice)
}

// Binder linearity holds inside embedded terms too, not just for Bind
// variables.
func TestEmbeddedTermLinearity(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.RegisterCore()
	compiler := NewCompiler(nil, registry)

	// A lambda dropping half of its pair argument.
	leaky := lambda.Lam{
		Param:     "p",
		ParamType: lambda.Tensor{A: lambda.IntType, B: lambda.IntType},
		Body: lambda.LetPair{
			X:    "a",
			Y:    "b",
			Pair: lambda.Var{Name: "p"},
			Body: lambda.Var{Name: "a"},
		},
	}

	var violation *lambda.LinearityViolation

	_, err := compiler.Compile(Pure{Term: leaky})
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "b")
	c.Assert(violation.Reason, qt.Equals, lambda.Unused)

	// The same term buried in a Bind continuation.
	_, err = compiler.Compile(Bind{
		E:   Perform{Op: "log"},
		Var: "x",
		K: Pure{Term: lambda.LetUnit{
			E:    lambda.Var{Name: "x"},
			Body: leaky,
		}},
	})
	c.Assert(errors.As(err, &violation), qt.IsTrue)
	c.Assert(violation.Variable, qt.Equals, "b")
	c.Assert(violation.Reason, qt.Equals, lambda.Unused)
}

func TestCoreArithmetic(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.RegisterCore()
	compiler := NewCompiler(nil, registry)

	p, err := compiler.Compile(Perform{Op: "core/add", Args: []lambda.Term{intLit(2), intLit(3)}})
	c.Assert(err, qt.IsNil)
	m, _, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)
	v, _ := m.Register(p.Result)
	c.Assert(v, qt.Equals, machine.Value(machine.Int(5)))

	p, err = compiler.Compile(Perform{Op: "core/add", Args: []lambda.Term{intLit(math.MaxInt64), intLit(1)}})
	c.Assert(err, qt.IsNil)
	_, _, err = runProgram(t, registry, p)
	c.Assert(errors.Is(err, machine.ErrArithmeticOverflow), qt.IsTrue)
}

// Parallel lowers to the left-first interleaving: the trace order of
// effects is deterministic.
func TestParallelLeftFirst(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	registry.Register("emit", Func("emit", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		return args[0], nil
	}))
	compiler := NewCompiler(nil, registry)

	expr := Parallel{
		Left:  Perform{Op: "emit", Args: []lambda.Term{symLit("first")}},
		Right: Perform{Op: "emit", Args: []lambda.Term{symLit("second")}},
	}
	p, err := compiler.Compile(expr)
	c.Assert(err, qt.IsNil)

	m, res, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)

	var order []machine.Symbol
	for _, ev := range res.Trace.Events() {
		if ev.IsEffect() {
			order = append(order, ev.Tag)
		}
	}
	c.Assert(order, qt.DeepEquals, []machine.Symbol{"emit", "emit"})

	v, ok := m.Register(p.Result)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.DeepEquals, machine.Value(machine.Product{
		First:  machine.SymbolValue("first"),
		Second: machine.SymbolValue("second"),
	}))
}

func TestProduceConsume(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	compiler := NewCompiler(nil, registry)

	expr := Bind{
		E:   Perform{Op: OpProduce, Args: []lambda.Term{symLit("coin"), intLit(5), lambda.UnitTerm{}}},
		Var: "r",
		K:   Perform{Op: OpConsume, Args: []lambda.Term{lambda.Var{Name: "r"}}},
	}
	p, err := compiler.Compile(expr)
	c.Assert(err, qt.IsNil)

	m, res, err := runProgram(t, registry, p)
	c.Assert(err, qt.IsNil)

	produced, consumed := 0, 0
	for _, ev := range res.Trace.Events() {
		if ev.IsProduced() {
			produced++
		}
		if ev.IsConsumed() {
			consumed++
		}
	}
	c.Assert(produced, qt.Equals, 1)
	c.Assert(consumed, qt.Equals, 1)

	// The consume result is the payload.
	v, ok := m.Register(p.Result)
	c.Assert(ok, qt.IsTrue)
	c.Assert(v, qt.Equals, machine.Value(machine.Unit{}))
	c.Assert(res.FinalStateRoot, qt.Not(qt.Equals), res.InitialStateRoot)
}

func TestRegistryArena(t *testing.T) {
	c := qt.New(t)

	registry := NewRegistry(nil)
	h := constHandler("stable", machine.Unit{})
	id := registry.Add(h)
	c.Assert(id, qt.Equals, h.ID(hash.Default()))

	got, ok := registry.Handler(id)
	c.Assert(ok, qt.IsTrue)
	c.Assert(got.Name, qt.Equals, "stable")

	// Same name, same identity.
	c.Assert(registry.Add(constHandler("stable", machine.Int(1))), qt.Equals, id)
}
