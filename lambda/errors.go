package lambda

import (
	"errors"
	"fmt"
)

// ErrUnboundVariable reports a variable occurrence with no hypothesis
// in scope.
var ErrUnboundVariable = errors.New("unbound variable")

// ViolationReason says how a hypothesis violated its linearity class.
type ViolationReason uint8

// Violation reasons.
const (
	// Unused: a linear or relevant hypothesis was never consumed.
	Unused ViolationReason = iota
	// UsedTwice: a linear or affine hypothesis was consumed more than
	// once on some path.
	UsedTwice
	// NotUsedOnAllBranches: the arms of a case consume a linear
	// hypothesis a different number of times.
	NotUsedOnAllBranches
)

func (r ViolationReason) String() string {
	switch r {
	case Unused:
		return "unused"
	case UsedTwice:
		return "used twice"
	case NotUsedOnAllBranches:
		return "not used on all branches"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// LinearityViolation is returned by the checker when a hypothesis
// breaks its linearity class. It names the variable so callers can
// point at the binder.
type LinearityViolation struct {
	Variable string
	Reason   ViolationReason
	Pos      Span
}

func (e *LinearityViolation) Error() string {
	return fmt.Sprintf("lambda: %s: variable %q %s", e.Pos, e.Variable, e.Reason)
}

// TypeMismatch is returned by the checker when a term does not have
// the type its context demands.
type TypeMismatch struct {
	Expected Type
	Found    Type
	Pos      Span
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("lambda: %s: type mismatch: expected %s, found %s", e.Pos, e.Expected, e.Found)
}
