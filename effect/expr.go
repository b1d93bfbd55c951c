// Package effect implements Layer 2: algebraic effect expressions,
// scoped handler dispatch, and intent elaboration, all lowering through
// Layer 1 to Layer 0 instructions.
package effect

import (
	"github.com/causality-fw/causality/lambda"
)

// Expr is a Layer 2 effect expression.
type Expr interface {
	isExpr()
}

// Pure embeds an effect-free term.
type Pure struct {
	Term lambda.Term
}

// Perform invokes an effect operation with term-valued arguments. The
// resolving handler is looked up at runtime, innermost scope first.
type Perform struct {
	Op   string
	Args []lambda.Term
}

// Bind sequences two expressions: the result of E is bound to Var,
// linearly, for the continuation K.
type Bind struct {
	E   Expr
	Var string
	K   Expr
}

// Handle installs handler clauses around the evaluation of E. Scopes
// nest; the innermost clause for a tag wins.
type Handle struct {
	E       Expr
	Clauses []Clause
}

// Clause routes one operation tag to a handler.
type Clause struct {
	Op      string
	Handler Handler
}

// Parallel evaluates both sides. Lowering picks the causally valid
// left-first interleaving, so the visible order is deterministic; the
// result is the pair of both results.
type Parallel struct {
	Left  Expr
	Right Expr
}

func (Pure) isExpr()     {}
func (Perform) isExpr()  {}
func (Bind) isExpr()     {}
func (Handle) isExpr()   {}
func (Parallel) isExpr() {}
