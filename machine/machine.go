package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.vocdoni.io/dvote/db"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/log"
	"github.com/causality-fw/causality/smt"
	"github.com/causality-fw/causality/types"
)

// NoFailPC marks a Constraint with no fail branch: a false outcome is a
// fatal ConstraintViolation.
const NoFailPC = ^uint32(0)

// DefaultMaxSteps bounds runs that never reach Halt.
const DefaultMaxSteps = 1 << 20

// Database namespaces of the machine state trees.
var (
	livePrefix      = []byte("rl/")
	nullifierPrefix = []byte("nf/")
)

// consumedTombstone replaces a live entry once its resource is retired.
// The arbo tree supports insert and update only, so retirement is an
// update to the tombstone rather than a deletion; liveness checks treat
// tombstoned entries as consumed.
var consumedTombstone = make([]byte, types.HashSize)

// Dispatcher resolves effect operations. The machine suspends at every
// EffectCall and observes only the (args, result) pair.
type Dispatcher interface {
	Dispatch(ctx context.Context, tag Symbol, args []Value) (Value, error)
}

// RunOptions configures a run.
type RunOptions struct {
	// Dispatcher resolves EffectCall instructions. A nil dispatcher
	// fails every effect with HandlerMissing.
	Dispatcher Dispatcher
	// MaxSteps bounds total executed instructions; 0 means
	// DefaultMaxSteps.
	MaxSteps uint64
	// Hasher is the content hasher; nil means the system default.
	Hasher hash.Hasher
}

// Result is the outcome of a completed (or aborted) run.
type Result struct {
	InitialStateRoot types.Hash
	FinalStateRoot   types.Hash
	Trace            *Trace
	Aborted          bool
}

// Machine executes a program over an SMT-backed state. Each run starts
// from the explicit state held in the database; there is no ambient
// state.
type Machine struct {
	program    *Program
	live       *smt.Tree
	nullifiers *smt.Tree
	hasher     hash.Hasher
	trace      *Trace
	dispatcher Dispatcher
	maxSteps   uint64
	steps      uint64
	registers  map[RegisterID]Value
}

// New prepares a machine for one run of program against the state in
// database.
func New(database db.Database, program *Program, opts RunOptions) (*Machine, error) {
	live, err := smt.New(database, livePrefix)
	if err != nil {
		return nil, err
	}
	nullifiers, err := smt.New(database, nullifierPrefix)
	if err != nil {
		return nil, err
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = hash.Default()
	}
	maxSteps := opts.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Machine{
		program:    program,
		live:       live,
		nullifiers: nullifiers,
		hasher:     hasher,
		trace:      NewTrace(hasher),
		dispatcher: opts.Dispatcher,
		maxSteps:   maxSteps,
		registers:  make(map[RegisterID]Value),
	}, nil
}

// StateRoot binds the live and nullifier roots into a single state
// root.
func (m *Machine) StateRoot() (types.Hash, error) {
	liveRoot, err := m.live.Root()
	if err != nil {
		return types.Hash{}, err
	}
	nullRoot, err := m.nullifiers.Root()
	if err != nil {
		return types.Hash{}, err
	}
	e := codec.NewEncoder()
	e.WriteHash(liveRoot)
	e.WriteHash(nullRoot)
	return m.hasher.Sum(e.Bytes()), nil
}

// Register returns the value in a register of the top-level frame.
func (m *Machine) Register(id RegisterID) (Value, bool) {
	v, ok := m.registers[id]
	return v, ok
}

// Trace returns the execution trace.
func (m *Machine) Trace() *Trace { return m.trace }

// LiveResource loads a live resource by id; ErrResourceMissing if it
// was never produced, ErrResourceAlreadyConsumed if it was retired.
func (m *Machine) LiveResource(id types.ResourceID) (*Resource, error) {
	raw, err := m.live.Get(id.Bytes())
	if err != nil {
		if errors.Is(err, smt.ErrKeyNotFound) {
			return nil, ErrResourceMissing
		}
		return nil, err
	}
	if isTombstone(raw) {
		return nil, ErrResourceAlreadyConsumed
	}
	d := codec.NewDecoder(raw)
	return DecodeResource(d)
}

func isTombstone(raw []byte) bool {
	if len(raw) != len(consumedTombstone) {
		return false
	}
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}

// LiveOpening proves the live-set entry for a resource id against the
// current live root.
func (m *Machine) LiveOpening(id types.ResourceID) (*smt.Opening, error) {
	return m.live.GenOpening(id.Bytes())
}

// NullifierOpening proves the nullifier-set entry for a nullifier
// against the current nullifier root.
func (m *Machine) NullifierOpening(n types.NullifierID) (*smt.Opening, error) {
	return m.nullifiers.GenOpening(n.Bytes())
}

// SeedResource inserts a resource into the live set outside of any run,
// for building initial states. The resource id is recomputed.
func (m *Machine) SeedResource(r *Resource) (types.ResourceID, error) {
	r.ComputeID(m.hasher)
	if err := m.live.Add(r.ID.Bytes(), codec.Encode(r)); err != nil {
		return types.ResourceID{}, err
	}
	return r.ID, nil
}

// frame is one executing instruction sequence: the top-level program or
// an applied closure body.
type frame struct {
	code      []Instruction
	registers map[RegisterID]Value
	pc        uint32
}

func (f *frame) fail(err error) error {
	var ins Instruction
	if int(f.pc) < len(f.code) {
		ins = f.code[f.pc]
	}
	return &Failure{PC: f.pc, Instruction: ins, Err: err}
}

func (f *frame) read(reg RegisterID) (Value, error) {
	v, ok := f.registers[reg]
	if !ok {
		return nil, f.fail(fmt.Errorf("r%d: %w", reg, ErrInvalidRegister))
	}
	return v, nil
}

// Run executes the program to completion. Execution errors return the
// failure together with the partial Result holding the truncated trace.
func (m *Machine) Run(ctx context.Context) (*Result, error) {
	initialRoot, err := m.StateRoot()
	if err != nil {
		return nil, err
	}
	res := &Result{InitialStateRoot: initialRoot, Trace: m.trace}

	top := &frame{code: m.program.Instructions, registers: m.registers}
	runErr := m.exec(ctx, top)

	finalRoot, rootErr := m.StateRoot()
	if rootErr != nil {
		return res, rootErr
	}
	res.FinalStateRoot = finalRoot
	if runErr != nil {
		if errors.Is(runErr, ErrEffectAborted) {
			res.Aborted = true
		}
		return res, runErr
	}
	return res, nil
}

// exec runs one frame to Halt (or to the end of its code).
func (m *Machine) exec(ctx context.Context, f *frame) error {
	for int(f.pc) < len(f.code) {
		if m.steps >= m.maxSteps {
			return f.fail(ErrStepBudget)
		}
		m.steps++

		next := f.pc + 1
		switch ins := f.code[f.pc].(type) {
		case Const:
			v := ins.Lit
			if cl, ok := v.(Closure); ok && len(ins.Captures) > 0 {
				captured := make(map[Symbol]Value, len(ins.Captures))
				for _, cap := range ins.Captures {
					cv, err := f.read(cap.Reg)
					if err != nil {
						return err
					}
					captured[cap.Name] = cv
				}
				v = Closure{Params: cl.Params, Body: cl.Body, Captured: captured}
			}
			m.write(f, ins.Rd, v)

		case Move:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			m.write(f, ins.Rd, v)

		case Apply:
			fv, err := f.read(ins.Rf)
			if err != nil {
				return err
			}
			cl, ok := fv.(Closure)
			if !ok {
				return f.fail(fmt.Errorf("apply target is %s: %w", ValueString(fv), ErrTypeMismatch))
			}
			arg, err := f.read(ins.Ra)
			if err != nil {
				return err
			}
			result, err := m.apply(ctx, cl, arg)
			if err != nil {
				return err
			}
			m.write(f, ins.Rd, result)

		case MakePair:
			a, err := f.read(ins.Ra)
			if err != nil {
				return err
			}
			b, err := f.read(ins.Rb)
			if err != nil {
				return err
			}
			m.write(f, ins.Rd, Product{First: a, Second: b})

		case Fst:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			p, ok := v.(Product)
			if !ok {
				return f.fail(fmt.Errorf("fst of %s: %w", ValueString(v), ErrTypeMismatch))
			}
			m.write(f, ins.Rd, p.First)

		case Snd:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			p, ok := v.(Product)
			if !ok {
				return f.fail(fmt.Errorf("snd of %s: %w", ValueString(v), ErrTypeMismatch))
			}
			m.write(f, ins.Rd, p.Second)

		case Inject:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			m.write(f, ins.Rd, SumValue{Tag: ins.Tag, Inner: v})

		case Match:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			sv, ok := v.(SumValue)
			if !ok {
				return f.fail(fmt.Errorf("match on %s: %w", ValueString(v), ErrTypeMismatch))
			}
			m.write(f, ins.Rd, sv.Inner)
			if sv.Tag == TagLeft {
				next = ins.PCLeft
			} else {
				next = ins.PCRight
			}

		case EffectCall:
			result, err := m.effectCall(ctx, f, ins)
			if err != nil {
				return err
			}
			m.write(f, ins.Rd, result)

		case Consume:
			if err := m.consume(f, ins); err != nil {
				return err
			}

		case Produce:
			payload, err := f.read(ins.PayloadReg)
			if err != nil {
				return err
			}
			r := &Resource{
				ResourceType: ins.ResourceType,
				Quantity:     ins.Quantity,
				Domain:       ins.Domain,
				Payload:      payload,
			}
			r.NullifierSeed = ins.Seed
			r.ComputeID(m.hasher)
			if err := m.live.Add(r.ID.Bytes(), codec.Encode(r)); err != nil {
				return f.fail(fmt.Errorf("produce: %w", err))
			}
			m.trace.Produced(r.ID)
			m.write(f, ins.Rd, ResourceRef(r.ID))

		case Constraint:
			v, err := f.read(ins.Rs)
			if err != nil {
				return err
			}
			b, ok := v.(Bool)
			if !ok {
				return f.fail(fmt.Errorf("constraint on %s: %w", ValueString(v), ErrTypeMismatch))
			}
			exprHash := m.hasher.Sum(codec.Encode(ins))
			m.trace.ConstraintChecked(exprHash, bool(b))
			if !bool(b) {
				if ins.OnFailPC == NoFailPC {
					return f.fail(ErrConstraintViolation)
				}
				next = ins.OnFailPC
			}

		case Halt:
			return nil

		default:
			return f.fail(fmt.Errorf("unknown instruction %T", ins))
		}

		if int(next) > len(f.code) {
			return f.fail(fmt.Errorf("pc %d out of range 0..%d", next, len(f.code)))
		}
		f.pc = next
	}
	// Falling off the end behaves like Halt; the empty program halts
	// immediately.
	return nil
}

// write stores a value and records the write in the trace.
func (m *Machine) write(f *frame, reg RegisterID, v Value) {
	f.registers[reg] = v
	m.trace.Wrote(reg, ValueHash(m.hasher, v))
}

// apply runs a closure body in a fresh frame: parameters first, then
// captured variables in sorted name order.
func (m *Machine) apply(ctx context.Context, cl Closure, arg Value) (Value, error) {
	fn, ok := m.program.Functions[cl.Body]
	if !ok {
		return nil, fmt.Errorf("closure body %s not in program: %w",
			types.Hash(cl.Body).Hex(), ErrTypeMismatch)
	}
	sub := &frame{
		code:      fn.Code,
		registers: make(map[RegisterID]Value, len(cl.Params)+len(cl.Captured)),
	}
	next := RegisterID(0)
	for range cl.Params {
		// Single-argument application; multi-parameter closures are
		// curried by the compiler.
		m.write(sub, next, arg)
		next++
	}
	names := make([]string, 0, len(cl.Captured))
	for name := range cl.Captured {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		m.write(sub, next, cl.Captured[Symbol(name)])
		next++
	}
	if err := m.exec(ctx, sub); err != nil {
		return nil, err
	}
	result, ok := sub.registers[fn.Result]
	if !ok {
		return nil, fmt.Errorf("closure result register r%d: %w", fn.Result, ErrInvalidRegister)
	}
	return result, nil
}

// effectCall is the machine's only suspension point.
func (m *Machine) effectCall(ctx context.Context, f *frame, ins EffectCall) (Value, error) {
	args := make([]Value, len(ins.Args))
	for i, reg := range ins.Args {
		v, err := f.read(reg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if err := ctx.Err(); err != nil {
		return nil, f.fail(fmt.Errorf("%v: %w", err, ErrEffectAborted))
	}
	if m.dispatcher == nil {
		return nil, f.fail(fmt.Errorf("tag %q: %w", string(ins.Tag), ErrHandlerMissing))
	}
	result, err := m.dispatcher.Dispatch(ctx, ins.Tag, args)
	if err != nil {
		if ctx.Err() != nil {
			// In-flight effect result discarded on abort.
			return nil, f.fail(fmt.Errorf("tag %q: %w", string(ins.Tag), ErrEffectAborted))
		}
		return nil, f.fail(fmt.Errorf("tag %q: %w", string(ins.Tag), err))
	}
	argsEnc := codec.NewEncoder()
	argsEnc.WriteUint32(uint32(len(args)))
	for _, a := range args {
		a.EncodeTo(argsEnc)
	}
	m.trace.Effect(ins.Tag, m.hasher.Sum(argsEnc.Bytes()), ValueHash(m.hasher, result))
	log.Debugw("effect handled", "tag", string(ins.Tag), "args", len(args))
	return result, nil
}

// consume retires a resource: the nullifier is inserted and the live
// entry tombstoned atomically within the instruction step.
func (m *Machine) consume(f *frame, ins Consume) error {
	v, err := f.read(ins.Rs)
	if err != nil {
		return err
	}
	ref, ok := v.(ResourceRef)
	if !ok {
		return f.fail(fmt.Errorf("consume of %s: %w", ValueString(v), ErrTypeMismatch))
	}
	r, err := m.LiveResource(types.ResourceID(ref))
	if err != nil {
		return f.fail(err)
	}
	nullifier := r.Nullifier(m.hasher)
	if _, err := m.nullifiers.Get(nullifier.Bytes()); err == nil {
		return f.fail(ErrResourceAlreadyConsumed)
	} else if !errors.Is(err, smt.ErrKeyNotFound) {
		return f.fail(err)
	}
	if err := m.nullifiers.Add(nullifier.Bytes(), []byte{1}); err != nil {
		return f.fail(fmt.Errorf("insert nullifier: %w", err))
	}
	if err := m.live.Update(r.ID.Bytes(), consumedTombstone); err != nil {
		return f.fail(fmt.Errorf("retire resource: %w", err))
	}
	m.trace.Consumed(r.ID, nullifier)
	m.write(f, ins.RdPayload, r.Payload)
	m.write(f, ins.RdNullifier, ResourceRef(nullifier))
	return nil
}
