package effect

import (
	"context"
	"fmt"

	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/log"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// Reserved operation tags emitted by the compiler to open and close
// handler scopes at runtime. The scope index is passed as an Int
// argument referencing the program's scope table.
const (
	TagScopePush machine.Symbol = "scope/push"
	TagScopePop  machine.Symbol = "scope/pop"
)

// Scope maps operation tags to handler identifiers for one Handle
// block.
type Scope map[machine.Symbol]types.HandlerID

// Registry is the effect dispatch table: a content-addressed handler
// arena, a base binding per tag, and the runtime stack of handler
// scopes. It implements machine.Dispatcher. A registry drives one run
// at a time.
type Registry struct {
	hasher hash.Hasher
	arena  map[types.HandlerID]Handler
	base   map[machine.Symbol]types.HandlerID
	table  []Scope
	stack  []Scope
}

// NewRegistry returns an empty registry using the given hasher for
// handler identities, or the default hasher if nil.
func NewRegistry(h hash.Hasher) *Registry {
	if h == nil {
		h = hash.Default()
	}
	return &Registry{
		hasher: h,
		arena:  map[types.HandlerID]Handler{},
		base:   map[machine.Symbol]types.HandlerID{},
	}
}

// Add stores a handler in the arena without binding a tag, returning
// its identifier.
func (r *Registry) Add(h Handler) types.HandlerID {
	id := h.ID(r.hasher)
	r.arena[id] = h
	return id
}

// Register stores a handler and binds it as the base handler for a
// tag. Scoped bindings installed by Handle shadow it.
func (r *Registry) Register(tag machine.Symbol, h Handler) types.HandlerID {
	id := r.Add(h)
	r.base[tag] = id
	return id
}

// Handler returns the arena entry for an identifier.
func (r *Registry) Handler(id types.HandlerID) (Handler, bool) {
	h, ok := r.arena[id]
	return h, ok
}

// InstallScopes sets the scope table of the program about to run and
// clears any stack left over from a previous run.
func (r *Registry) InstallScopes(table []Scope) {
	r.table = table
	r.stack = r.stack[:0]
}

// Resolve walks the scope stack innermost-first, then the base
// bindings.
func (r *Registry) Resolve(tag machine.Symbol) (Handler, bool) {
	for i := len(r.stack) - 1; i >= 0; i-- {
		if id, ok := r.stack[i][tag]; ok {
			h, ok := r.arena[id]
			return h, ok
		}
	}
	if id, ok := r.base[tag]; ok {
		h, ok := r.arena[id]
		return h, ok
	}
	return Handler{}, false
}

// Dispatch implements machine.Dispatcher. The reserved scope tags
// manipulate the handler stack; everything else resolves to a handler
// or fails with HandlerMissing.
func (r *Registry) Dispatch(ctx context.Context, tag machine.Symbol, args []machine.Value) (machine.Value, error) {
	switch tag {
	case TagScopePush:
		return r.pushScope(args)
	case TagScopePop:
		return r.popScope()
	}
	h, ok := r.Resolve(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", machine.ErrHandlerMissing, string(tag))
	}
	resume := func(v machine.Value) (machine.Value, error) { return v, nil }
	return h.Fn(ctx, args, resume)
}

func (r *Registry) pushScope(args []machine.Value) (machine.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("effect: scope push takes one argument, got %d", len(args))
	}
	idx, ok := args[0].(machine.Int)
	if !ok {
		return nil, fmt.Errorf("effect: scope push index: %w", machine.ErrTypeMismatch)
	}
	if idx < 0 || int(idx) >= len(r.table) {
		return nil, fmt.Errorf("effect: scope index %d out of range 0..%d", idx, len(r.table)-1)
	}
	r.stack = append(r.stack, r.table[idx])
	return machine.Unit{}, nil
}

func (r *Registry) popScope() (machine.Value, error) {
	if len(r.stack) == 0 {
		return nil, fmt.Errorf("effect: scope pop on empty stack")
	}
	r.stack = r.stack[:len(r.stack)-1]
	return machine.Unit{}, nil
}

// RegisterCore binds the built-in operation set: checked i64
// arithmetic, equality, and logging.
func (r *Registry) RegisterCore() {
	r.Register("core/add", Func("core/add", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		a, b, err := twoInts("core/add", args)
		if err != nil {
			return nil, err
		}
		return machine.CheckedAdd(a, b)
	}))
	r.Register("core/sub", Func("core/sub", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		a, b, err := twoInts("core/sub", args)
		if err != nil {
			return nil, err
		}
		return machine.CheckedSub(a, b)
	}))
	r.Register("core/mul", Func("core/mul", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		a, b, err := twoInts("core/mul", args)
		if err != nil {
			return nil, err
		}
		return machine.CheckedMul(a, b)
	}))
	r.Register("core/eq", Func("core/eq", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		a, b, err := twoInts("core/eq", args)
		if err != nil {
			return nil, err
		}
		return machine.Bool(a == b), nil
	}))
	r.Register("log", Func("log", func(_ context.Context, args []machine.Value) (machine.Value, error) {
		rendered := make([]string, len(args))
		for i, a := range args {
			rendered[i] = machine.ValueString(a)
		}
		log.Debugw("program log", "values", rendered)
		return machine.Unit{}, nil
	}))
}

func twoInts(op string, args []machine.Value) (machine.Int, machine.Int, error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("effect: %s takes two arguments, got %d", op, len(args))
	}
	a, ok := args[0].(machine.Int)
	if !ok {
		return 0, 0, fmt.Errorf("effect: %s: %w", op, machine.ErrTypeMismatch)
	}
	b, ok := args[1].(machine.Int)
	if !ok {
		return 0, 0, fmt.Errorf("effect: %s: %w", op, machine.ErrTypeMismatch)
	}
	return a, b, nil
}
