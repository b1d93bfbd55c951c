package lambda

import (
	"github.com/causality-fw/causality/machine"
)

// Builder is the incremental lowering surface used by the effect layer.
// It shares the register allocator, environment, and function arena of
// a single top-level frame, so terms lowered through it interleave with
// instructions the caller emits directly.
//
// The builder does not run the full type checker, whose context would
// need types for the caller's bindings; it enforces binder linearity
// through CheckUsage and leans on the machine's dynamic typing for the
// rest.
type Builder struct {
	l *lowerer
	f *frame
}

// NewBuilder returns a builder lowering into a fresh top-level frame.
func (c *Compiler) NewBuilder() *Builder {
	return &Builder{
		l: &lowerer{hasher: c.hasher},
		f: &frame{env: map[string]machine.RegisterID{}},
	}
}

// Term lowers a term into the running frame and returns its result
// register. Free variables resolve against bindings installed with
// Bind. Terms whose binders violate their linearity discipline are
// rejected before any instruction is emitted.
func (b *Builder) Term(t Term) (machine.RegisterID, error) {
	if err := CheckUsage(t); err != nil {
		return 0, err
	}
	return b.l.lower(t, b.f)
}

// Bind maps a name to a register for subsequent Term calls. The
// returned closure restores any shadowed binding.
func (b *Builder) Bind(name string, reg machine.RegisterID) func() {
	return b.f.bindReg(name, reg)
}

// Fresh allocates a register.
func (b *Builder) Fresh() machine.RegisterID {
	return b.f.fresh()
}

// Emit appends an instruction and returns its index.
func (b *Builder) Emit(ins machine.Instruction) uint32 {
	return b.f.emit(ins)
}

// PC returns the index the next emitted instruction will get.
func (b *Builder) PC() uint32 {
	return b.f.pc()
}

// Patch replaces the instruction at an index. Used to resolve forward
// branch targets.
func (b *Builder) Patch(at uint32, ins machine.Instruction) {
	b.f.code[at] = ins
}

// Finish seals the frame with a Halt and returns the program.
func (b *Builder) Finish() *machine.Program {
	b.f.emit(machine.Halt{})
	return &machine.Program{Instructions: b.f.code, Functions: b.l.funcs}
}
