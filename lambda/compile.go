package lambda

import (
	"fmt"
	"sort"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// Compiler lowers checked terms to Layer 0 instructions. The hasher
// derives the expression identifiers of closure bodies.
type Compiler struct {
	hasher hash.Hasher
}

// NewCompiler returns a compiler using the given hasher, or the
// default hasher if nil.
func NewCompiler(h hash.Hasher) *Compiler {
	if h == nil {
		h = hash.Default()
	}
	return &Compiler{hasher: h}
}

// Compile checks a closed term and lowers it to a program. The second
// return is the register holding the term's result when the program
// halts. A term rejected by the checker produces no instructions.
func Compile(t Term) (*machine.Program, machine.RegisterID, error) {
	return NewCompiler(nil).Compile(t)
}

// Compile checks and lowers a closed term.
func (c *Compiler) Compile(t Term) (*machine.Program, machine.RegisterID, error) {
	if _, err := Check(t); err != nil {
		return nil, 0, err
	}
	l := &lowerer{hasher: c.hasher}
	f := &frame{env: map[string]machine.RegisterID{}}
	result, err := l.lower(t, f)
	if err != nil {
		return nil, 0, err
	}
	f.emit(machine.Halt{})
	program := &machine.Program{Instructions: f.code, Functions: l.funcs}
	return program, result, nil
}

// lowerer carries per-compilation state: the function arena shared by
// every frame.
type lowerer struct {
	hasher hash.Hasher
	funcs  map[types.ExprID]machine.Function
}

// frame is the code and register state of one function body under
// construction. Registers are allocated monotonically and never
// reused.
type frame struct {
	env  map[string]machine.RegisterID
	next machine.RegisterID
	code []machine.Instruction
}

func (f *frame) fresh() machine.RegisterID {
	r := f.next
	f.next++
	return r
}

func (f *frame) emit(ins machine.Instruction) uint32 {
	f.code = append(f.code, ins)
	return uint32(len(f.code) - 1)
}

func (f *frame) pc() uint32 { return uint32(len(f.code)) }

// bindReg maps a surface name to a register for the duration of a
// scope, restoring any shadowed mapping on return.
func (f *frame) bindReg(name string, reg machine.RegisterID) func() {
	old, shadowed := f.env[name]
	f.env[name] = reg
	return func() {
		if shadowed {
			f.env[name] = old
		} else {
			delete(f.env, name)
		}
	}
}

func (l *lowerer) lower(t Term, f *frame) (machine.RegisterID, error) {
	switch term := t.(type) {
	case Var:
		reg, ok := f.env[term.Name]
		if !ok {
			return 0, fmt.Errorf("lambda: %s: %w: %q", term.Pos, ErrUnboundVariable, term.Name)
		}
		return reg, nil

	case Lit:
		rd := f.fresh()
		f.emit(machine.Const{Rd: rd, Lit: term.Value})
		return rd, nil

	case UnitTerm:
		rd := f.fresh()
		f.emit(machine.Const{Rd: rd, Lit: machine.Unit{}})
		return rd, nil

	case Lam:
		return l.lowerLam(term, f)

	case App:
		rf, err := l.lower(term.Fn, f)
		if err != nil {
			return 0, err
		}
		ra, err := l.lower(term.Arg, f)
		if err != nil {
			return 0, err
		}
		rd := f.fresh()
		f.emit(machine.Apply{Rd: rd, Rf: rf, Ra: ra})
		return rd, nil

	case Pair:
		ra, err := l.lower(term.First, f)
		if err != nil {
			return 0, err
		}
		rb, err := l.lower(term.Second, f)
		if err != nil {
			return 0, err
		}
		rd := f.fresh()
		f.emit(machine.MakePair{Rd: rd, Ra: ra, Rb: rb})
		return rd, nil

	case LetPair:
		rp, err := l.lower(term.Pair, f)
		if err != nil {
			return 0, err
		}
		rx := f.fresh()
		f.emit(machine.Fst{Rd: rx, Rs: rp})
		ry := f.fresh()
		f.emit(machine.Snd{Rd: ry, Rs: rp})
		restoreX := f.bindReg(term.X, rx)
		restoreY := f.bindReg(term.Y, ry)
		result, err := l.lower(term.Body, f)
		restoreY()
		restoreX()
		return result, err

	case Inl:
		rs, err := l.lower(term.Value, f)
		if err != nil {
			return 0, err
		}
		rd := f.fresh()
		f.emit(machine.Inject{Rd: rd, Tag: machine.TagLeft, Rs: rs})
		return rd, nil

	case Inr:
		rs, err := l.lower(term.Value, f)
		if err != nil {
			return 0, err
		}
		rd := f.fresh()
		f.emit(machine.Inject{Rd: rd, Tag: machine.TagRight, Rs: rs})
		return rd, nil

	case Case:
		return l.lowerCase(term, f)

	case LetUnit:
		if _, err := l.lower(term.E, f); err != nil {
			return 0, err
		}
		return l.lower(term.Body, f)

	default:
		return 0, fmt.Errorf("lambda: unknown term %T", t)
	}
}

// lowerLam compiles the body in a fresh frame. Frame convention: the
// parameter sits in register 0, captured variables (sorted by name)
// right after. The body's identifier is the content hash of its
// compiled form, so structurally equal abstractions share one entry in
// the function arena.
func (l *lowerer) lowerLam(term Lam, f *frame) (machine.RegisterID, error) {
	captures := freeVars(term.Body, map[string]bool{term.Param: true})
	sort.Strings(captures)

	sub := &frame{env: map[string]machine.RegisterID{term.Param: 0}, next: 1}
	for _, name := range captures {
		sub.env[name] = sub.fresh()
	}
	result, err := l.lower(term.Body, sub)
	if err != nil {
		return 0, err
	}
	fn := machine.Function{Code: sub.code, Result: result}
	id := l.functionID(term.Param, captures, fn)
	if l.funcs == nil {
		l.funcs = map[types.ExprID]machine.Function{}
	}
	l.funcs[id] = fn

	caps := make([]machine.Capture, 0, len(captures))
	for _, name := range captures {
		reg, ok := f.env[name]
		if !ok {
			return 0, fmt.Errorf("lambda: %s: %w: %q", term.Pos, ErrUnboundVariable, name)
		}
		caps = append(caps, machine.Capture{Name: machine.Symbol(name), Reg: reg})
	}
	if len(caps) == 0 {
		caps = nil
	}
	rd := f.fresh()
	f.emit(machine.Const{
		Rd:       rd,
		Lit:      machine.Closure{Params: []machine.Symbol{machine.Symbol(term.Param)}, Body: id},
		Captures: caps,
	})
	return rd, nil
}

// lowerCase emits a Match with the two arms laid out inline. Both arms
// move their result into a shared register and jump to the join point.
func (l *lowerer) lowerCase(term Case, f *frame) (machine.RegisterID, error) {
	rs, err := l.lower(term.Scrutinee, f)
	if err != nil {
		return 0, err
	}
	payload := f.fresh()
	result := f.fresh()
	matchAt := f.emit(machine.Match{Rs: rs, Rd: payload})

	pcLeft := f.pc()
	restoreL := f.bindReg(term.LeftVar, payload)
	rl, err := l.lower(term.LeftBody, f)
	restoreL()
	if err != nil {
		return 0, err
	}
	f.emit(machine.Move{Rd: result, Rs: rl})
	jumpLeft := l.emitJump(f)

	pcRight := f.pc()
	restoreR := f.bindReg(term.RightVar, payload)
	rr, err := l.lower(term.RightBody, f)
	restoreR()
	if err != nil {
		return 0, err
	}
	f.emit(machine.Move{Rd: result, Rs: rr})

	join := f.pc()
	f.code[matchAt] = machine.Match{Rs: rs, Rd: payload, PCLeft: pcLeft, PCRight: pcRight}
	l.patchJump(f, jumpLeft, join)
	return result, nil
}

// emitJump emits an unconditional jump as a Match on a left-injected
// unit, both arms pointing at the target. The target is patched later.
func (l *lowerer) emitJump(f *frame) uint32 {
	rj := f.fresh()
	f.emit(machine.Const{Rd: rj, Lit: machine.SumValue{Tag: machine.TagLeft, Inner: machine.Unit{}}})
	return f.emit(machine.Match{Rs: rj, Rd: rj})
}

func (l *lowerer) patchJump(f *frame, at, target uint32) {
	m := f.code[at].(machine.Match)
	m.PCLeft = target
	m.PCRight = target
	f.code[at] = m
}

// functionID content-hashes a compiled closure body together with its
// parameter and capture names.
func (l *lowerer) functionID(param string, captures []string, fn machine.Function) types.ExprID {
	e := codec.NewEncoder()
	e.WriteString(param)
	e.WriteUint32(uint32(len(captures)))
	for _, name := range captures {
		e.WriteString(name)
	}
	e.WriteUint32(uint32(len(fn.Code)))
	for _, ins := range fn.Code {
		ins.EncodeTo(e)
	}
	e.WriteUint32(uint32(fn.Result))
	return types.ExprID(l.hasher.Sum(e.Bytes()))
}

// freeVars collects the free variable names of a term, sorted order
// left to the caller.
func freeVars(t Term, bound map[string]bool) []string {
	seen := map[string]bool{}
	var walk func(t Term, bound map[string]bool)
	walk = func(t Term, bound map[string]bool) {
		switch term := t.(type) {
		case Var:
			if !bound[term.Name] && !seen[term.Name] {
				seen[term.Name] = true
			}
		case Lit, UnitTerm:
		case Lam:
			walk(term.Body, withBound(bound, term.Param))
		case App:
			walk(term.Fn, bound)
			walk(term.Arg, bound)
		case Pair:
			walk(term.First, bound)
			walk(term.Second, bound)
		case LetPair:
			walk(term.Pair, bound)
			walk(term.Body, withBound(bound, term.X, term.Y))
		case Inl:
			walk(term.Value, bound)
		case Inr:
			walk(term.Value, bound)
		case Case:
			walk(term.Scrutinee, bound)
			walk(term.LeftBody, withBound(bound, term.LeftVar))
			walk(term.RightBody, withBound(bound, term.RightVar))
		case LetUnit:
			walk(term.E, bound)
			walk(term.Body, bound)
		}
	}
	walk(t, bound)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

func withBound(bound map[string]bool, names ...string) map[string]bool {
	out := make(map[string]bool, len(bound)+len(names))
	for name := range bound {
		out[name] = true
	}
	for _, name := range names {
		out[name] = true
	}
	return out
}
