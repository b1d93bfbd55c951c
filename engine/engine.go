// Package engine is the process-internal API of the framework. It ties
// the surface reader, the effect and lambda compilers, the register
// machine, the witness generator and the proving backends together
// behind five operations: Compile, Run, WitnessFor, Prove and Verify.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.vocdoni.io/dvote/db"

	"github.com/causality-fw/causality/circuit"
	"github.com/causality-fw/causality/crypto/hash"
	"github.com/causality-fw/causality/effect"
	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/lisp"
	"github.com/causality-fw/causality/machine"
	"github.com/causality-fw/causality/prover"
	"github.com/causality-fw/causality/types"
	"github.com/causality-fw/causality/witness"
)

// Program is a compiled program together with its handler scope table
// and content identity.
type Program struct {
	Machine *machine.Program
	Scopes  []effect.Scope
	Result  machine.RegisterID
	ID      types.ProgramID
}

// Instructions returns the instruction sequence.
func (p *Program) Instructions() []machine.Instruction {
	return p.Machine.Instructions
}

// Diagnostic is a static error with its source position.
type Diagnostic struct {
	Pos     lambda.Span
	Message string
}

// Diagnostics bundles the static errors of a compilation.
type Diagnostics struct {
	Items []Diagnostic
}

// Empty reports whether compilation produced no diagnostics.
func (d *Diagnostics) Empty() bool { return d == nil || len(d.Items) == 0 }

// RunConfig configures a run. DB is required; each run starts from the
// explicit state in it.
type RunConfig struct {
	DB db.Database
	// Handlers overrides the engine's registry for this run.
	Handlers *effect.Registry
	MaxSteps uint64
}

// Result is the outcome of an engine run. It retains the machine so a
// witness can be generated from its final state.
type Result struct {
	Value       machine.Value
	InitialRoot types.Hash
	FinalRoot   types.Hash
	Trace       *machine.Trace
	Aborted     bool

	machine *machine.Machine
}

// Options configure an engine.
type Options struct {
	// Handlers is the effect handler registry. Nil creates a fresh
	// registry with the core handlers installed.
	Handlers *effect.Registry
	// Backends is the proving backend registry. Nil creates one with
	// the groth16 and stub backends.
	Backends *prover.Registry
	// Backend names the default proving backend.
	Backend string
	// Hasher fixes the content hash. Nil means the system default; the
	// choice is part of every program identifier.
	Hasher hash.Hasher
	// Domain stamped on resources produced by compiled programs.
	Domain types.DomainID
}

// Engine is the public entry point. Compilation and runs share the
// handler registry, so concurrent runs need separate registries via
// RunConfig.Handlers.
type Engine struct {
	handlers *effect.Registry
	backends *prover.Registry
	backend  string
	hasher   hash.Hasher
	compiler *effect.Compiler
}

// New creates an engine.
func New(opts Options) *Engine {
	if opts.Hasher == nil {
		opts.Hasher = hash.Default()
	}
	if opts.Handlers == nil {
		opts.Handlers = effect.NewRegistry(opts.Hasher)
		opts.Handlers.RegisterCore()
	}
	if opts.Backends == nil {
		opts.Backends = prover.NewRegistry()
		opts.Backends.Register(prover.NewGroth16())
		opts.Backends.Register(prover.NewStub())
	}
	if opts.Backend == "" {
		opts.Backend = "groth16"
	}
	compiler := effect.NewCompiler(opts.Hasher, opts.Handlers)
	compiler.Domain = opts.Domain
	return &Engine{
		handlers: opts.Handlers,
		backends: opts.Backends,
		backend:  opts.Backend,
		hasher:   opts.Hasher,
		compiler: compiler,
	}
}

// Handlers returns the effect handler registry, so callers can install
// their own operations before compiling.
func (e *Engine) Handlers() *effect.Registry { return e.handlers }

// Compile reads a surface program and lowers it to instructions.
// Static errors (parse, type, linearity) are reported as diagnostics;
// everything else comes back as a plain error.
func (e *Engine) Compile(source string) (*Program, *Diagnostics, error) {
	expr, err := lisp.ReadExpr(source)
	if err != nil {
		if d := diagnose(err); d != nil {
			return nil, d, err
		}
		return nil, nil, err
	}
	// Effect-free programs go through the full static checker; effectful
	// ones are checked per bind during lowering.
	if pure, ok := expr.(effect.Pure); ok {
		if _, err := lambda.Check(pure.Term); err != nil {
			if d := diagnose(err); d != nil {
				return nil, d, err
			}
			return nil, nil, err
		}
	}
	compiled, err := e.compiler.Compile(expr)
	if err != nil {
		if d := diagnose(err); d != nil {
			return nil, d, err
		}
		return nil, nil, err
	}
	return &Program{
		Machine: compiled.Machine,
		Scopes:  compiled.Scopes,
		Result:  compiled.Result,
		ID:      compiled.Machine.ID(e.hasher),
	}, &Diagnostics{}, nil
}

// CompileIntent elaborates an intent against concrete input resources
// and compiles the result.
func (e *Engine) CompileIntent(in *effect.Intent, inputs []types.ResourceID) (*Program, error) {
	compiled, err := e.compiler.Elaborate(in, inputs)
	if err != nil {
		return nil, err
	}
	return &Program{
		Machine: compiled.Machine,
		Scopes:  compiled.Scopes,
		Result:  compiled.Result,
		ID:      compiled.Machine.ID(e.hasher),
	}, nil
}

// Run executes a compiled program over the state in cfg.DB. A failed
// run returns the error together with a Result holding the truncated
// trace.
func (e *Engine) Run(ctx context.Context, p *Program, cfg RunConfig) (*Result, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("run: a database is required")
	}
	handlers := cfg.Handlers
	if handlers == nil {
		handlers = e.handlers
	}
	handlers.InstallScopes(p.Scopes)

	m, err := machine.New(cfg.DB, p.Machine, machine.RunOptions{
		Dispatcher: handlers,
		MaxSteps:   cfg.MaxSteps,
		Hasher:     e.hasher,
	})
	if err != nil {
		return nil, err
	}
	result, err := m.Run(ctx)
	if result == nil {
		return nil, err
	}
	value, _ := m.Register(p.Result)
	// On failure the result still carries the truncated trace and the
	// roots, alongside the error.
	return &Result{
		Value:       value,
		InitialRoot: result.InitialStateRoot,
		FinalRoot:   result.FinalStateRoot,
		Trace:       result.Trace,
		Aborted:     result.Aborted,
		machine:     m,
	}, err
}

// WitnessFor extracts the witness of a completed run. The database
// holds the trace commitment tree; it may be the run database or a
// scratch one.
func (e *Engine) WitnessFor(database db.Database, p *Program, run *Result) (*witness.Witness, error) {
	if run.machine == nil {
		return nil, fmt.Errorf("witness: result does not carry a machine state")
	}
	return witness.NewGenerator(database).FromRun(run.machine, p.ID, &machine.Result{
		InitialStateRoot: run.InitialRoot,
		FinalStateRoot:   run.FinalRoot,
		Trace:            run.Trace,
		Aborted:          run.Aborted,
	})
}

// Prove generates a proof for the witness with the engine's default
// backend. The circuit id must match the witness's program.
func (e *Engine) Prove(ctx context.Context, circuitID types.CircuitID, w *witness.Witness) (*prover.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if want := circuit.ReferenceID(e.hasher, w.ProgramID); circuitID != want {
		return nil, fmt.Errorf("prove: circuit %s does not match program %s", circuitID, w.ProgramID)
	}
	backend, err := e.backends.Backend(e.backend)
	if err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return backend.Prove(circuitID, w)
}

// Verify checks a proof against public inputs. A false result with a
// nil error means the proof is simply invalid.
func (e *Engine) Verify(circuitID types.CircuitID, p *prover.Proof, pub *witness.PublicInputs) (bool, error) {
	if p.CircuitID != circuitID {
		return false, nil
	}
	backend, err := e.backends.Backend(p.Backend)
	if err != nil {
		return false, err
	}
	err = backend.Verify(circuitID, p, pub)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, prover.ErrVerificationFailed):
		return false, nil
	default:
		return false, err
	}
}

// diagnose converts static errors into diagnostics. Anything that is
// not a parse, type or linearity error yields nil.
func diagnose(err error) *Diagnostics {
	var parseErr *lisp.ParseError
	if errors.As(err, &parseErr) {
		return &Diagnostics{Items: []Diagnostic{{
			Pos:     lambda.Span{Line: parseErr.Line, Col: parseErr.Col},
			Message: parseErr.Msg,
		}}}
	}
	var typeErr *lambda.TypeMismatch
	if errors.As(err, &typeErr) {
		return &Diagnostics{Items: []Diagnostic{{
			Pos:     typeErr.Pos,
			Message: typeErr.Error(),
		}}}
	}
	var linErr *lambda.LinearityViolation
	if errors.As(err, &linErr) {
		return &Diagnostics{Items: []Diagnostic{{
			Pos:     linErr.Pos,
			Message: linErr.Error(),
		}}}
	}
	if errors.Is(err, lambda.ErrUnboundVariable) {
		return &Diagnostics{Items: []Diagnostic{{Message: err.Error()}}}
	}
	return nil
}
