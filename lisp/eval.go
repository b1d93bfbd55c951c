package lisp

import (
	"fmt"

	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/machine"
)

// evalTerm evaluates a handler clause body directly over values. The
// fragment is first-order: abstraction and application stay in the
// compiled program, not in handler bodies.
func evalTerm(t lambda.Term, env map[string]machine.Value) (machine.Value, error) {
	switch term := t.(type) {
	case lambda.Var:
		v, ok := env[term.Name]
		if !ok {
			return nil, fmt.Errorf("lisp: %s: %w: %q", term.Pos, lambda.ErrUnboundVariable, term.Name)
		}
		return v, nil

	case lambda.Lit:
		return term.Value, nil

	case lambda.UnitTerm:
		return machine.Unit{}, nil

	case lambda.Pair:
		first, err := evalTerm(term.First, env)
		if err != nil {
			return nil, err
		}
		second, err := evalTerm(term.Second, env)
		if err != nil {
			return nil, err
		}
		return machine.Product{First: first, Second: second}, nil

	case lambda.LetPair:
		v, err := evalTerm(term.Pair, env)
		if err != nil {
			return nil, err
		}
		p, ok := v.(machine.Product)
		if !ok {
			return nil, fmt.Errorf("lisp: %s: let-pair of %s: %w", term.Pos, machine.ValueString(v), machine.ErrTypeMismatch)
		}
		env[term.X], env[term.Y] = p.First, p.Second
		defer delete(env, term.X)
		defer delete(env, term.Y)
		return evalTerm(term.Body, env)

	case lambda.Inl:
		v, err := evalTerm(term.Value, env)
		if err != nil {
			return nil, err
		}
		return machine.SumValue{Tag: machine.TagLeft, Inner: v}, nil

	case lambda.Inr:
		v, err := evalTerm(term.Value, env)
		if err != nil {
			return nil, err
		}
		return machine.SumValue{Tag: machine.TagRight, Inner: v}, nil

	case lambda.Case:
		v, err := evalTerm(term.Scrutinee, env)
		if err != nil {
			return nil, err
		}
		s, ok := v.(machine.SumValue)
		if !ok {
			return nil, fmt.Errorf("lisp: %s: case of %s: %w", term.Pos, machine.ValueString(v), machine.ErrTypeMismatch)
		}
		if s.Tag == machine.TagLeft {
			env[term.LeftVar] = s.Inner
			defer delete(env, term.LeftVar)
			return evalTerm(term.LeftBody, env)
		}
		env[term.RightVar] = s.Inner
		defer delete(env, term.RightVar)
		return evalTerm(term.RightBody, env)

	case lambda.LetUnit:
		if _, err := evalTerm(term.E, env); err != nil {
			return nil, err
		}
		return evalTerm(term.Body, env)

	default:
		return nil, fmt.Errorf("lisp: handler bodies cannot contain %T", t)
	}
}
