package effect

import (
	"errors"
	"fmt"

	"github.com/causality-fw/causality/codec"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/types"
)

// ErrIntentUnsatisfied is returned when a declared output of an intent
// is not produced on some success path.
var ErrIntentUnsatisfied = errors.New("intent unsatisfied")

// ResourcePattern names a resource shape an intent consumes or
// delivers. For inputs, Name binds the consumed payload inside the
// body.
type ResourcePattern struct {
	Name         string
	ResourceType machine.Symbol
	Quantity     uint64
}

// EncodeTo implements codec.Encodable.
func (p ResourcePattern) EncodeTo(e *codec.Encoder) {
	e.WriteString(p.Name)
	e.WriteString(string(p.ResourceType))
	e.WriteUint64(p.Quantity)
}

// Intent declares what a program consumes, what it must deliver, and
// the effectful body connecting the two.
type Intent struct {
	Label   string
	Inputs  []ResourcePattern
	Outputs []ResourcePattern
	Body    Expr
}

// ID derives the intent identifier from its label and declared
// patterns. The body is behavior, not identity.
func (in *Intent) ID(h hash.Hasher) types.IntentID {
	e := codec.NewEncoder()
	e.WriteString("intent")
	e.WriteString(in.Label)
	e.WriteUint32(uint32(len(in.Inputs)))
	for _, p := range in.Inputs {
		p.EncodeTo(e)
	}
	e.WriteUint32(uint32(len(in.Outputs)))
	for _, p := range in.Outputs {
		p.EncodeTo(e)
	}
	return types.IntentID(h.Sum(e.Bytes()))
}

// Elaborate lowers an intent to a program. Each input pattern is bound
// to one of the given resource ids: the elaborated program consumes it
// up front and binds its payload, linearly, under the pattern name.
// Elaboration fails with IntentUnsatisfied when the body cannot
// guarantee a declared output on every success path.
func (c *Compiler) Elaborate(in *Intent, inputs []types.ResourceID) (*Program, error) {
	if len(inputs) != len(in.Inputs) {
		return nil, fmt.Errorf("effect: intent %q declares %d inputs, got %d resources",
			in.Label, len(in.Inputs), len(inputs))
	}
	guaranteed := guaranteedProduces(in.Body)
	declared := map[machine.Symbol]int{}
	for _, out := range in.Outputs {
		declared[out.ResourceType]++
	}
	for rt, want := range declared {
		if guaranteed[rt] < want {
			return nil, fmt.Errorf("%w: intent %q cannot guarantee %d %q output(s)",
				ErrIntentUnsatisfied, in.Label, want, string(rt))
		}
	}

	expr := in.Body
	for i := len(in.Inputs) - 1; i >= 0; i-- {
		expr = Bind{
			E: Perform{
				Op:   OpConsume,
				Args: []lambda.Term{lambda.Lit{Value: machine.ResourceRef(inputs[i])}},
			},
			Var: in.Inputs[i].Name,
			K:   expr,
		}
	}
	return c.Compile(expr)
}

// CheckSatisfied validates a completed run against the intent's
// declared outputs: every output pattern must match a distinct
// resource that the run produced and left live.
func CheckSatisfied(m *machine.Machine, result *machine.Result, in *Intent) error {
	if result.Aborted {
		return fmt.Errorf("%w: intent %q: run aborted", ErrIntentUnsatisfied, in.Label)
	}
	claimed := map[types.ResourceID]bool{}
	for _, out := range in.Outputs {
		if !matchOutput(m, result, out, claimed) {
			return fmt.Errorf("%w: intent %q: no live %q resource with quantity %d",
				ErrIntentUnsatisfied, in.Label, string(out.ResourceType), out.Quantity)
		}
	}
	return nil
}

func matchOutput(m *machine.Machine, result *machine.Result, out ResourcePattern, claimed map[types.ResourceID]bool) bool {
	for _, ev := range result.Trace.Events() {
		if !ev.IsProduced() || claimed[ev.Resource] {
			continue
		}
		r, err := m.LiveResource(ev.Resource)
		if err != nil {
			continue
		}
		if r.ResourceType == out.ResourceType && r.Quantity == out.Quantity {
			claimed[ev.Resource] = true
			return true
		}
	}
	return false
}

// guaranteedProduces counts, per resource type, the productions that
// happen on every success path of an expression.
func guaranteedProduces(e Expr) map[machine.Symbol]int {
	out := map[machine.Symbol]int{}
	collect(e, out)
	return out
}

func collect(e Expr, out map[machine.Symbol]int) {
	switch expr := e.(type) {
	case Perform:
		if expr.Op != OpProduce || len(expr.Args) != 3 {
			return
		}
		if lit, ok := expr.Args[0].(lambda.Lit); ok {
			if sym, ok := lit.Value.(machine.SymbolValue); ok {
				out[machine.Symbol(sym)]++
			}
		}
	case Bind:
		collect(expr.E, out)
		collect(expr.K, out)
	case Handle:
		collect(expr.E, out)
	case Parallel:
		collect(expr.Left, out)
		collect(expr.Right, out)
	}
}
