package machine

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/util"
)

// dispatcherFunc adapts a function to the Dispatcher interface.
type dispatcherFunc func(ctx context.Context, tag Symbol, args []Value) (Value, error)

func (f dispatcherFunc) Dispatch(ctx context.Context, tag Symbol, args []Value) (Value, error) {
	return f(ctx, tag, args)
}

func run(t *testing.T, program *Program, opts RunOptions) (*Machine, *Result, error) {
	t.Helper()
	m, err := New(metadb.NewTest(t), program, opts)
	qt.Assert(t, err, qt.IsNil)
	res, err := m.Run(context.Background())
	return m, res, err
}

func TestEmptyProgramHalts(t *testing.T) {
	c := qt.New(t)

	_, res, err := run(t, &Program{}, RunOptions{})
	c.Assert(err, qt.IsNil)
	c.Assert(res.Trace.Len(), qt.Equals, 0)
	c.Assert(res.FinalStateRoot, qt.Equals, res.InitialStateRoot)
}

// Identity closure: Apply(r0, r_id, r_unit) yields Unit.
func TestIdentityClosure(t *testing.T) {
	c := qt.New(t)

	bodyID := types.ExprID(hash.Default().Sum([]byte("identity body")))
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 1, Lit: Closure{Params: []Symbol{"x"}, Body: bodyID}},
			Const{Rd: 2, Lit: Unit{}},
			Apply{Rd: 0, Rf: 1, Ra: 2},
			Halt{},
		},
		Functions: map[types.ExprID]Function{
			// The body of the identity function is empty; the argument
			// register is the result.
			bodyID: {Result: 0},
		},
	}

	m, res, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	r0, ok := m.Register(0)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r0, qt.Equals, Value(Unit{}))

	wrote := 0
	for _, ev := range res.Trace.Events() {
		c.Assert(ev.IsEffect(), qt.IsFalse)
		if ev.IsWrote() {
			wrote++
		}
	}
	c.Assert(wrote >= 2, qt.IsTrue)
}

// Pair/fst: Fst(MakePair(7, 9)) yields 7 and leaves the state root
// untouched.
func TestPairFst(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Int(7)},
			Const{Rd: 1, Lit: Int(9)},
			MakePair{Rd: 2, Ra: 0, Rb: 1},
			Fst{Rd: 3, Rs: 2},
			Halt{},
		},
	}

	m, res, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	r3, ok := m.Register(3)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r3, qt.Equals, Value(Int(7)))
	c.Assert(res.FinalStateRoot, qt.Equals, res.InitialStateRoot)
}

// Sum match: the Left arm runs.
func TestSumMatch(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Int(1)},
			Inject{Rd: 1, Tag: TagLeft, Rs: 0},
			Match{Rs: 1, Rd: 3, PCLeft: 3, PCRight: 5},
			Const{Rd: 2, Lit: Int(10)}, // left arm
			Halt{},
			Const{Rd: 2, Lit: Int(20)}, // right arm
			Halt{},
		},
	}

	m, _, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	r2, ok := m.Register(2)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r2, qt.Equals, Value(Int(10)))
}

// Resource lifecycle: produce then consume; a second consume fails with
// ResourceAlreadyConsumed.
func TestResourceLifecycle(t *testing.T) {
	c := qt.New(t)

	domain := types.DomainID(hash.Default().Sum([]byte("test domain")))
	seed := util.Random32()
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Unit{}},
			Produce{Rd: 1, ResourceType: "coin", Quantity: 5, Domain: domain, Seed: seed, PayloadReg: 0},
			Consume{Rs: 1, RdPayload: 2, RdNullifier: 3},
			Halt{},
		},
	}

	m, res, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	var produced, consumed int
	var sawProducedBeforeConsumed bool
	for _, ev := range res.Trace.Events() {
		if ev.IsProduced() {
			produced++
			sawProducedBeforeConsumed = consumed == 0
		}
		if ev.IsConsumed() {
			consumed++
			c.Assert(ev.Nullifier.IsZero(), qt.IsFalse)
		}
	}
	c.Assert(produced, qt.Equals, 1)
	c.Assert(consumed, qt.Equals, 1)
	c.Assert(sawProducedBeforeConsumed, qt.IsTrue)

	payload, ok := m.Register(2)
	c.Assert(ok, qt.IsTrue)
	c.Assert(payload, qt.Equals, Value(Unit{}))

	// The state root moved: one nullifier added, the live entry
	// retired.
	c.Assert(res.FinalStateRoot, qt.Not(qt.Equals), res.InitialStateRoot)

	// A second consume of the same id fails.
	ref, ok := m.Register(1)
	c.Assert(ok, qt.IsTrue)
	id := types.ResourceID(ref.(ResourceRef))
	_, err = m.LiveResource(id)
	c.Assert(errors.Is(err, ErrResourceAlreadyConsumed), qt.IsTrue)
}

func TestConsumeNeverProduced(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: ResourceRef(hash.Default().Sum([]byte("ghost")))},
			Consume{Rs: 0, RdPayload: 1, RdNullifier: 2},
			Halt{},
		},
	}

	_, res, err := run(t, program, RunOptions{})
	c.Assert(errors.Is(err, ErrResourceMissing), qt.IsTrue)
	// The trace is truncated at the last completed event.
	for _, ev := range res.Trace.Events() {
		c.Assert(ev.IsConsumed(), qt.IsFalse)
	}
}

func TestDoubleConsumeSecondRun(t *testing.T) {
	c := qt.New(t)

	database := metadb.NewTest(t)
	domain := types.DomainID(hash.Default().Sum([]byte("d")))
	seed := util.Random32()

	seedMachine, err := New(database, &Program{}, RunOptions{})
	c.Assert(err, qt.IsNil)
	id, err := seedMachine.SeedResource(&Resource{
		ResourceType:  "coin",
		Quantity:      1,
		Domain:        domain,
		Payload:       Unit{},
		NullifierSeed: seed,
	})
	c.Assert(err, qt.IsNil)

	consumeProgram := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: ResourceRef(id)},
			Consume{Rs: 0, RdPayload: 1, RdNullifier: 2},
			Halt{},
		},
	}

	m1, err := New(database, consumeProgram, RunOptions{})
	c.Assert(err, qt.IsNil)
	_, err = m1.Run(context.Background())
	c.Assert(err, qt.IsNil)

	m2, err := New(database, consumeProgram, RunOptions{})
	c.Assert(err, qt.IsNil)
	_, err = m2.Run(context.Background())
	c.Assert(errors.Is(err, ErrResourceAlreadyConsumed), qt.IsTrue)
}

func TestEffectDispatch(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 1, Lit: Int(42)},
			EffectCall{Rd: 0, Tag: "log", Args: []RegisterID{1}},
			Halt{},
		},
	}

	var gotTag Symbol
	var gotArgs []Value
	dispatcher := dispatcherFunc(func(_ context.Context, tag Symbol, args []Value) (Value, error) {
		gotTag = tag
		gotArgs = args
		return Unit{}, nil
	})

	m, res, err := run(t, program, RunOptions{Dispatcher: dispatcher})
	c.Assert(err, qt.IsNil)
	c.Assert(gotTag, qt.Equals, Symbol("log"))
	c.Assert(gotArgs, qt.DeepEquals, []Value{Int(42)})

	r0, ok := m.Register(0)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r0, qt.Equals, Value(Unit{}))

	effects := 0
	for _, ev := range res.Trace.Events() {
		if ev.IsEffect() {
			effects++
			c.Assert(ev.Tag, qt.Equals, Symbol("log"))
			c.Assert(ev.ArgsHash.IsZero(), qt.IsFalse)
			c.Assert(ev.ResultHash.IsZero(), qt.IsFalse)
		}
	}
	c.Assert(effects, qt.Equals, 1)
}

func TestHandlerMissing(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			EffectCall{Rd: 0, Tag: "nope"},
			Halt{},
		},
	}

	_, _, err := run(t, program, RunOptions{})
	c.Assert(errors.Is(err, ErrHandlerMissing), qt.IsTrue)
}

func TestEffectAbort(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			EffectCall{Rd: 0, Tag: "slow"},
			Halt{},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := dispatcherFunc(func(ctx context.Context, _ Symbol, _ []Value) (Value, error) {
		cancel()
		return nil, ctx.Err()
	})

	m, err := New(metadb.NewTest(t), program, RunOptions{Dispatcher: dispatcher})
	c.Assert(err, qt.IsNil)
	res, err := m.Run(ctx)
	c.Assert(errors.Is(err, ErrEffectAborted), qt.IsTrue)
	c.Assert(res.Aborted, qt.IsTrue)
	// The discarded effect never reaches the trace.
	for _, ev := range res.Trace.Events() {
		c.Assert(ev.IsEffect(), qt.IsFalse)
	}
}

func TestConstraint(t *testing.T) {
	c := qt.New(t)

	fatal := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Bool(false)},
			Constraint{Rs: 0, OnFailPC: NoFailPC},
			Halt{},
		},
	}
	_, res, err := run(t, fatal, RunOptions{})
	c.Assert(errors.Is(err, ErrConstraintViolation), qt.IsTrue)
	checks := 0
	for _, ev := range res.Trace.Events() {
		if ev.IsConstraint() {
			checks++
			c.Assert(ev.Outcome, qt.IsFalse)
		}
	}
	c.Assert(checks, qt.Equals, 1)

	branching := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Bool(false)},
			Constraint{Rs: 0, OnFailPC: 3},
			Halt{}, // skipped
			Const{Rd: 1, Lit: Int(99)},
			Halt{},
		},
	}
	m, _, err := run(t, branching, RunOptions{})
	c.Assert(err, qt.IsNil)
	r1, ok := m.Register(1)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r1, qt.Equals, Value(Int(99)))
}

func TestInvalidRegister(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Move{Rd: 0, Rs: 7},
			Halt{},
		},
	}
	_, _, err := run(t, program, RunOptions{})
	c.Assert(errors.Is(err, ErrInvalidRegister), qt.IsTrue)

	var failure *Failure
	c.Assert(errors.As(err, &failure), qt.IsTrue)
	c.Assert(failure.PC, qt.Equals, uint32(0))
}

func TestTypeMismatch(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Int(1)},
			Fst{Rd: 1, Rs: 0},
			Halt{},
		},
	}
	_, _, err := run(t, program, RunOptions{})
	c.Assert(errors.Is(err, ErrTypeMismatch), qt.IsTrue)
}

func TestStepBudget(t *testing.T) {
	c := qt.New(t)

	// An infinite loop via Match jumping back to itself.
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Int(0)},
			Inject{Rd: 1, Tag: TagLeft, Rs: 0},
			Match{Rs: 1, Rd: 2, PCLeft: 2, PCRight: 2},
			Halt{},
		},
	}
	_, _, err := run(t, program, RunOptions{MaxSteps: 100})
	c.Assert(errors.Is(err, ErrStepBudget), qt.IsTrue)
}

func TestCapturedClosure(t *testing.T) {
	c := qt.New(t)

	bodyID := types.ExprID(hash.Default().Sum([]byte("const body")))
	// A closure capturing y and returning it, ignoring its argument:
	// frame convention puts the parameter in r0 and the capture in r1.
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 5, Lit: Int(33)},
			Const{
				Rd:       1,
				Lit:      Closure{Params: []Symbol{"x"}, Body: bodyID},
				Captures: []Capture{{Name: "y", Reg: 5}},
			},
			Const{Rd: 2, Lit: Unit{}},
			Apply{Rd: 0, Rf: 1, Ra: 2},
			Halt{},
		},
		Functions: map[types.ExprID]Function{
			bodyID: {Result: 1},
		},
	}

	m, _, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)
	r0, ok := m.Register(0)
	c.Assert(ok, qt.IsTrue)
	c.Assert(r0, qt.Equals, Value(Int(33)))
}

// Seeding the closure frame goes through the same write path as any
// other register write, so the argument and capture show up in the
// trace.
func TestApplyTracesFrameSeeds(t *testing.T) {
	c := qt.New(t)

	bodyID := types.ExprID(hash.Default().Sum([]byte("seed body")))
	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 5, Lit: Int(33)},
			Const{
				Rd:       1,
				Lit:      Closure{Params: []Symbol{"x"}, Body: bodyID},
				Captures: []Capture{{Name: "y", Reg: 5}},
			},
			Const{Rd: 2, Lit: Int(7)},
			Apply{Rd: 0, Rf: 1, Ra: 2},
			Halt{},
		},
		Functions: map[types.ExprID]Function{
			bodyID: {Result: 1},
		},
	}

	_, res, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	h := hash.Default()
	writes := func(vh types.Hash) int {
		n := 0
		for _, ev := range res.Trace.Events() {
			if ev.IsWrote() && ev.ValueHash == vh {
				n++
			}
		}
		return n
	}
	// The argument is written by its Const and again when the frame is
	// seeded.
	c.Assert(writes(ValueHash(h, Int(7))), qt.Equals, 2)
	// The capture is written by its Const, at frame seeding, and as the
	// application result.
	c.Assert(writes(ValueHash(h, Int(33))), qt.Equals, 3)
}

func TestTracePrefixChain(t *testing.T) {
	c := qt.New(t)

	program := &Program{
		Instructions: []Instruction{
			Const{Rd: 0, Lit: Int(1)},
			Const{Rd: 1, Lit: Int(2)},
			Halt{},
		},
	}
	_, res, err := run(t, program, RunOptions{})
	c.Assert(err, qt.IsNil)

	events := res.Trace.Events()
	c.Assert(len(events), qt.Equals, 2)
	c.Assert(events[0].PrefixHash.IsZero(), qt.IsFalse)
	c.Assert(events[1].PrefixHash, qt.Not(qt.Equals), events[0].PrefixHash)
	c.Assert(res.Trace.PrefixHash(), qt.Equals, events[1].PrefixHash)
}

func TestCheckedArithmetic(t *testing.T) {
	c := qt.New(t)

	sum, err := CheckedAdd(Int(2), Int(3))
	c.Assert(err, qt.IsNil)
	c.Assert(sum, qt.Equals, Int(5))

	_, err = CheckedAdd(Int(1<<62), Int(1<<62))
	c.Assert(errors.Is(err, ErrArithmeticOverflow), qt.IsTrue)

	_, err = CheckedSub(Int(-2), Int(1<<62+1<<62-1))
	c.Assert(errors.Is(err, ErrArithmeticOverflow), qt.IsTrue)

	_, err = CheckedMul(Int(1<<32), Int(1<<32))
	c.Assert(errors.Is(err, ErrArithmeticOverflow), qt.IsTrue)

	prod, err := CheckedMul(Int(-7), Int(6))
	c.Assert(err, qt.IsNil)
	c.Assert(prod, qt.Equals, Int(-42))
}

func TestResourceIDDeterminism(t *testing.T) {
	c := qt.New(t)

	seed := util.Random32()
	domain := types.DomainID(hash.Default().Sum([]byte("d")))
	a := &Resource{ResourceType: "coin", Quantity: 5, Domain: domain, Payload: Unit{}, NullifierSeed: seed}
	b := &Resource{ResourceType: "coin", Quantity: 5, Domain: domain, Payload: Unit{}, NullifierSeed: seed}

	h := hash.Default()
	c.Assert(a.ComputeID(h), qt.Equals, b.ComputeID(h))
	c.Assert(a.Nullifier(h), qt.Equals, b.Nullifier(h))

	b.Quantity = 6
	c.Assert(a.ComputeID(h), qt.Not(qt.Equals), b.ComputeID(h))
}
