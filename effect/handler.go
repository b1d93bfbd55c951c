package effect

import (
	"context"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// Resume returns control to the suspended machine with the given
// value. The machine is single-threaded, so resuming is synchronous:
// the handler returns resume's result as its own.
type Resume func(machine.Value) (machine.Value, error)

// HandlerFunc is the body of a handler: it receives the effect
// arguments and a resume continuation.
type HandlerFunc func(ctx context.Context, args []machine.Value, resume Resume) (machine.Value, error)

// Handler is a first-class handler value. Name is its stable identity
// preimage: Go function values have no canonical encoding, so the
// content hash covers the declared name instead of the code. Equal
// names must mean equal behavior.
type Handler struct {
	Name string
	Fn   HandlerFunc
}

// ID derives the handler identifier from its name.
func (h Handler) ID(hasher hash.Hasher) types.HandlerID {
	e := codec.NewEncoder()
	e.WriteString(h.Name)
	return types.HandlerID(hasher.Sum(e.Bytes()))
}

// Func wraps a plain function as a handler that ignores resume
// chaining and resumes with its own result.
func Func(name string, fn func(ctx context.Context, args []machine.Value) (machine.Value, error)) Handler {
	return Handler{
		Name: name,
		Fn: func(ctx context.Context, args []machine.Value, resume Resume) (machine.Value, error) {
			v, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			return resume(v)
		},
	}
}
