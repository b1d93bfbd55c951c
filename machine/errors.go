package machine

import (
	"errors"
	"fmt"
)

// Execution failures. All of them halt the run and surface the
// truncated trace alongside the failure; none alias another.
var (
	// ErrInvalidRegister is returned when an instruction references a
	// register that has never been written.
	ErrInvalidRegister = errors.New("invalid register")
	// ErrTypeMismatch is returned when a register holds a value of the
	// wrong shape for the instruction.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrResourceAlreadyConsumed is returned by Consume when the
	// resource's nullifier is already in the nullifier set.
	ErrResourceAlreadyConsumed = errors.New("resource already consumed")
	// ErrResourceMissing is returned by Consume when the resource was
	// never produced.
	ErrResourceMissing = errors.New("resource missing")
	// ErrHandlerMissing is returned when an effect call has no
	// registered handler for its tag.
	ErrHandlerMissing = errors.New("handler missing")
	// ErrConstraintViolation is returned when a constraint fails with
	// no fail branch.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrArithmeticOverflow is returned on i64 overflow; wrapping is
	// disallowed.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	// ErrEffectAborted is returned when an outer controller aborts the
	// run at a suspension point.
	ErrEffectAborted = errors.New("effect aborted")
	// ErrStepBudget is returned when the run exceeds its step budget.
	ErrStepBudget = errors.New("step budget exceeded")
)

// Failure records where and how a run failed; the trace is truncated at
// the last completed event.
type Failure struct {
	PC          uint32
	Instruction Instruction
	Err         error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Instruction == nil {
		return fmt.Sprintf("pc=%d: %v", f.PC, f.Err)
	}
	return fmt.Sprintf("pc=%d (%s): %v", f.PC, f.Instruction, f.Err)
}

// Unwrap exposes the underlying failure class.
func (f *Failure) Unwrap() error { return f.Err }
