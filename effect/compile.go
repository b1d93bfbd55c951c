package effect

import (
	"fmt"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// Reserved operation tags the compiler lowers to resource instructions
// instead of effect calls.
const (
	// OpProduce creates a resource. Arguments: a symbol literal for the
	// resource type, a nonnegative int literal for the quantity, and a
	// payload term.
	OpProduce = "resource/produce"
	// OpConsume retires a resource. Argument: a term evaluating to a
	// ResourceRef. The result is the retired payload.
	OpConsume = "resource/consume"
)

// Program is a lowered effect expression: the machine program, the
// handler scope table its scope pushes index into, and the register
// holding the final result.
type Program struct {
	Machine *machine.Program
	Scopes  []Scope
	Result  machine.RegisterID
}

// Compiler lowers effect expressions. Handlers from Handle clauses are
// stored into the registry's arena at compile time; the scope table
// references them by identifier.
type Compiler struct {
	hasher   hash.Hasher
	registry *Registry
	// Domain stamped on every produced resource.
	Domain types.DomainID
}

// NewCompiler returns a compiler targeting the given registry, using
// the given hasher (default if nil) for expression and handler
// identifiers.
func NewCompiler(h hash.Hasher, registry *Registry) *Compiler {
	if h == nil {
		h = hash.Default()
	}
	return &Compiler{hasher: h, registry: registry}
}

// Compile checks bind-variable use and lowers the expression. Rejected
// expressions produce no instructions.
func (c *Compiler) Compile(e Expr) (*Program, error) {
	if err := checkBinds(e); err != nil {
		return nil, err
	}
	b := lambda.NewCompiler(c.hasher).NewBuilder()
	st := &lowerState{compiler: c, builder: b}
	result, err := st.lower(e)
	if err != nil {
		return nil, err
	}
	return &Program{Machine: b.Finish(), Scopes: st.scopes, Result: result}, nil
}

// lowerState accumulates the scope table and the produce counter that
// keeps nullifier seeds distinct within one program.
type lowerState struct {
	compiler *Compiler
	builder  *lambda.Builder
	scopes   []Scope
	produced uint32
}

func (st *lowerState) lower(e Expr) (machine.RegisterID, error) {
	b := st.builder
	switch expr := e.(type) {
	case Pure:
		return b.Term(expr.Term)

	case Perform:
		switch expr.Op {
		case OpProduce:
			return st.lowerProduce(expr)
		case OpConsume:
			return st.lowerConsume(expr)
		}
		args := make([]machine.RegisterID, 0, len(expr.Args))
		for _, arg := range expr.Args {
			r, err := b.Term(arg)
			if err != nil {
				return 0, err
			}
			args = append(args, r)
		}
		if len(args) == 0 {
			args = nil
		}
		rd := b.Fresh()
		b.Emit(machine.EffectCall{Rd: rd, Tag: machine.Symbol(expr.Op), Args: args})
		return rd, nil

	case Bind:
		r, err := st.lower(expr.E)
		if err != nil {
			return 0, err
		}
		restore := b.Bind(expr.Var, r)
		result, err := st.lower(expr.K)
		restore()
		return result, err

	case Handle:
		scope := make(Scope, len(expr.Clauses))
		for _, clause := range expr.Clauses {
			scope[machine.Symbol(clause.Op)] = st.compiler.registry.Add(clause.Handler)
		}
		idx := len(st.scopes)
		st.scopes = append(st.scopes, scope)

		ridx := b.Fresh()
		b.Emit(machine.Const{Rd: ridx, Lit: machine.Int(idx)})
		b.Emit(machine.EffectCall{Rd: b.Fresh(), Tag: TagScopePush, Args: []machine.RegisterID{ridx}})
		result, err := st.lower(expr.E)
		if err != nil {
			return 0, err
		}
		b.Emit(machine.EffectCall{Rd: b.Fresh(), Tag: TagScopePop})
		return result, nil

	case Parallel:
		left, err := st.lower(expr.Left)
		if err != nil {
			return 0, err
		}
		right, err := st.lower(expr.Right)
		if err != nil {
			return 0, err
		}
		rd := b.Fresh()
		b.Emit(machine.MakePair{Rd: rd, Ra: left, Rb: right})
		return rd, nil

	default:
		return 0, fmt.Errorf("effect: unknown expression %T", e)
	}
}

// lowerProduce emits a Produce instruction. The resource type and
// quantity are static literals; the nullifier seed is derived from the
// program position so repeated productions stay distinct.
func (st *lowerState) lowerProduce(expr Perform) (machine.RegisterID, error) {
	b := st.builder
	if len(expr.Args) != 3 {
		return 0, fmt.Errorf("effect: %s takes (type, quantity, payload), got %d arguments", OpProduce, len(expr.Args))
	}
	typeLit, ok := expr.Args[0].(lambda.Lit)
	if !ok {
		return 0, fmt.Errorf("effect: %s: resource type must be a symbol literal", OpProduce)
	}
	sym, ok := typeLit.Value.(machine.SymbolValue)
	if !ok {
		return 0, fmt.Errorf("effect: %s: resource type must be a symbol literal", OpProduce)
	}
	qtyLit, ok := expr.Args[1].(lambda.Lit)
	if !ok {
		return 0, fmt.Errorf("effect: %s: quantity must be an int literal", OpProduce)
	}
	qty, ok := qtyLit.Value.(machine.Int)
	if !ok || qty < 0 {
		return 0, fmt.Errorf("effect: %s: quantity must be a nonnegative int literal", OpProduce)
	}

	payload, err := b.Term(expr.Args[2])
	if err != nil {
		return 0, err
	}
	rd := b.Fresh()
	b.Emit(machine.Produce{
		Rd:           rd,
		ResourceType: machine.Symbol(sym),
		Quantity:     uint64(qty),
		Domain:       st.compiler.Domain,
		Seed:         st.nextSeed(),
		PayloadReg:   payload,
	})
	return rd, nil
}

func (st *lowerState) lowerConsume(expr Perform) (machine.RegisterID, error) {
	b := st.builder
	if len(expr.Args) != 1 {
		return 0, fmt.Errorf("effect: %s takes one resource argument, got %d", OpConsume, len(expr.Args))
	}
	rs, err := b.Term(expr.Args[0])
	if err != nil {
		return 0, err
	}
	payload := b.Fresh()
	b.Emit(machine.Consume{Rs: rs, RdPayload: payload, RdNullifier: b.Fresh()})
	return payload, nil
}

func (st *lowerState) nextSeed() [32]byte {
	e := codec.NewEncoder()
	e.WriteString("produce-seed")
	e.WriteUint32(st.produced)
	st.produced++
	return st.compiler.hasher.Sum(e.Bytes())
}

// checkBinds enforces the linear use of every Bind variable: exactly
// once on every path through the continuation.
func checkBinds(e Expr) error {
	switch expr := e.(type) {
	case Pure:
		return nil
	case Perform:
		return nil
	case Bind:
		if err := checkBinds(expr.E); err != nil {
			return err
		}
		min, max := exprUses(expr.K, expr.Var)
		switch {
		case max > 1:
			return &lambda.LinearityViolation{Variable: expr.Var, Reason: lambda.UsedTwice}
		case max == 0:
			return &lambda.LinearityViolation{Variable: expr.Var, Reason: lambda.Unused}
		case min == 0:
			return &lambda.LinearityViolation{Variable: expr.Var, Reason: lambda.NotUsedOnAllBranches}
		}
		return checkBinds(expr.K)
	case Handle:
		return checkBinds(expr.E)
	case Parallel:
		if err := checkBinds(expr.Left); err != nil {
			return err
		}
		return checkBinds(expr.Right)
	default:
		return fmt.Errorf("effect: unknown expression %T", e)
	}
}

// exprUses counts the minimum and maximum occurrences of a free
// variable across the paths of an expression. Counts cap at 2.
func exprUses(e Expr, x string) (int, int) {
	switch expr := e.(type) {
	case Pure:
		return lambda.UsageBounds(expr.Term, x)
	case Perform:
		var min, max int
		for _, arg := range expr.Args {
			amin, amax := lambda.UsageBounds(arg, x)
			min = cap2(min + amin)
			max = cap2(max + amax)
		}
		return min, max
	case Bind:
		emin, emax := exprUses(expr.E, x)
		if expr.Var == x {
			return emin, emax
		}
		kmin, kmax := exprUses(expr.K, x)
		return cap2(emin + kmin), cap2(emax + kmax)
	case Handle:
		return exprUses(expr.E, x)
	case Parallel:
		lmin, lmax := exprUses(expr.Left, x)
		rmin, rmax := exprUses(expr.Right, x)
		return cap2(lmin + rmin), cap2(lmax + rmax)
	default:
		return 0, 0
	}
}

func cap2(n int) int {
	if n > 2 {
		return 2
	}
	return n
}
