package lisp

import (
	"context"
	"fmt"

	"github.com/causality-fw/causality/effect"
	"github.com/causality-fw/causality/lambda"
	"github.com/causality-fw/causality/machine"
)

// ReadExpr parses source text and translates it to an effect
// expression. Effectful forms (perform, let, handle, par, produce,
// consume) sequence through let; everything else is a pure term.
func ReadExpr(source string) (effect.Expr, error) {
	n, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return translateExpr(n)
}

// ReadTerm parses source text as a pure term.
func ReadTerm(source string) (lambda.Term, error) {
	n, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return translateTerm(n)
}

func translateExpr(n *node) (effect.Expr, error) {
	if n.kind == nList && len(n.list) > 0 && n.list[0].kind == nSymbol {
		switch n.list[0].sym {
		case "perform":
			return translatePerform(n)
		case "produce":
			return translateProduce(n)
		case "consume":
			if len(n.list) != 2 {
				return nil, errAt(n.line, n.col, "consume takes one argument")
			}
			arg, err := translateTerm(n.list[1])
			if err != nil {
				return nil, err
			}
			return effect.Perform{Op: effect.OpConsume, Args: []lambda.Term{arg}}, nil
		case "let":
			return translateLet(n)
		case "handle":
			return translateHandle(n)
		case "par":
			if len(n.list) != 3 {
				return nil, errAt(n.line, n.col, "par takes two expressions")
			}
			left, err := translateExpr(n.list[1])
			if err != nil {
				return nil, err
			}
			right, err := translateExpr(n.list[2])
			if err != nil {
				return nil, err
			}
			return effect.Parallel{Left: left, Right: right}, nil
		}
	}
	term, err := translateTerm(n)
	if err != nil {
		return nil, err
	}
	return effect.Pure{Term: term}, nil
}

// (perform tag args...)
func translatePerform(n *node) (effect.Expr, error) {
	if len(n.list) < 2 {
		return nil, errAt(n.line, n.col, "perform needs an operation tag")
	}
	op, err := opTag(n.list[1])
	if err != nil {
		return nil, err
	}
	var args []lambda.Term
	for _, arg := range n.list[2:] {
		t, err := translateTerm(arg)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return effect.Perform{Op: op, Args: args}, nil
}

// (produce 'type quantity payload)
func translateProduce(n *node) (effect.Expr, error) {
	if len(n.list) != 4 {
		return nil, errAt(n.line, n.col, "produce takes (type quantity payload)")
	}
	args := make([]lambda.Term, 0, 3)
	for _, arg := range n.list[1:] {
		t, err := translateTerm(arg)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return effect.Perform{Op: effect.OpProduce, Args: args}, nil
}

// (let ((x e)) body)
func translateLet(n *node) (effect.Expr, error) {
	if len(n.list) != 3 {
		return nil, errAt(n.line, n.col, "let takes a binding list and a body")
	}
	bindings := n.list[1]
	if bindings.kind != nList || len(bindings.list) != 1 {
		return nil, errAt(bindings.line, bindings.col, "let takes exactly one binding")
	}
	binding := bindings.list[0]
	if binding.kind != nList || len(binding.list) != 2 || binding.list[0].kind != nSymbol {
		return nil, errAt(binding.line, binding.col, "let binding must be (name expr)")
	}
	e, err := translateExpr(binding.list[1])
	if err != nil {
		return nil, err
	}
	k, err := translateExpr(n.list[2])
	if err != nil {
		return nil, err
	}
	return effect.Bind{E: e, Var: binding.list[0].sym, K: k}, nil
}

// (handle expr (tag (params... resume) body)...)
func translateHandle(n *node) (effect.Expr, error) {
	if len(n.list) < 3 {
		return nil, errAt(n.line, n.col, "handle takes an expression and at least one clause")
	}
	e, err := translateExpr(n.list[1])
	if err != nil {
		return nil, err
	}
	var clauses []effect.Clause
	for _, cn := range n.list[2:] {
		clause, err := translateClause(cn)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return effect.Handle{E: e, Clauses: clauses}, nil
}

func translateClause(n *node) (effect.Clause, error) {
	if n.kind != nList || len(n.list) != 3 {
		return effect.Clause{}, errAt(n.line, n.col, "handler clause must be (tag (params) body)")
	}
	op, err := opTag(n.list[0])
	if err != nil {
		return effect.Clause{}, err
	}
	paramList := n.list[1]
	if paramList.kind != nList {
		return effect.Clause{}, errAt(paramList.line, paramList.col, "handler parameters must be a list")
	}
	var params []string
	for _, p := range paramList.list {
		if p.kind != nSymbol {
			return effect.Clause{}, errAt(p.line, p.col, "handler parameter must be a symbol")
		}
		// The trailing resume parameter is implicit: the machine
		// resumes with the body's value.
		if p.sym == "resume" {
			continue
		}
		params = append(params, p.sym)
	}
	body, err := translateTerm(n.list[2])
	if err != nil {
		return effect.Clause{}, err
	}
	name := fmt.Sprintf("%s@%d:%d", op, n.line, n.col)
	handler := effect.Func(name, func(_ context.Context, args []machine.Value) (machine.Value, error) {
		if len(args) < len(params) {
			return nil, fmt.Errorf("lisp: handler %s expects %d arguments, got %d", name, len(params), len(args))
		}
		env := make(map[string]machine.Value, len(params))
		for i, p := range params {
			env[p] = args[i]
		}
		return evalTerm(body, env)
	})
	return effect.Clause{Op: op, Handler: handler}, nil
}

func opTag(n *node) (string, error) {
	if n.kind == nSymbol {
		return n.sym, nil
	}
	if n.kind == nList && len(n.list) == 2 && n.list[0].isSym("quote") && n.list[1].kind == nSymbol {
		return n.list[1].sym, nil
	}
	return "", errAt(n.line, n.col, "operation tag must be a symbol")
}

func translateTerm(n *node) (lambda.Term, error) {
	span := lambda.Span{Line: n.line, Col: n.col}
	switch n.kind {
	case nInt:
		return lambda.Lit{Value: machine.Int(n.num), Pos: span}, nil
	case nBool:
		return lambda.Lit{Value: machine.Bool(n.b), Pos: span}, nil
	case nSymbol:
		return lambda.Var{Name: n.sym, Pos: span}, nil
	}
	if len(n.list) == 0 {
		return lambda.UnitTerm{Pos: span}, nil
	}
	if head := n.list[0]; head.kind == nSymbol {
		switch head.sym {
		case "quote":
			if len(n.list) != 2 || n.list[1].kind != nSymbol {
				return nil, errAt(n.line, n.col, "quote takes one symbol")
			}
			return lambda.Lit{Value: machine.SymbolValue(n.list[1].sym), Pos: span}, nil
		case "pair":
			if len(n.list) != 3 {
				return nil, errAt(n.line, n.col, "pair takes two terms")
			}
			first, err := translateTerm(n.list[1])
			if err != nil {
				return nil, err
			}
			second, err := translateTerm(n.list[2])
			if err != nil {
				return nil, err
			}
			return lambda.Pair{First: first, Second: second, Pos: span}, nil
		case "inl", "inr":
			return translateInject(n, span)
		case "case":
			return translateCase(n, span)
		case "lambda":
			return translateLambda(n, span)
		case "let-pair":
			return translateLetPair(n, span)
		case "begin":
			if len(n.list) != 3 {
				return nil, errAt(n.line, n.col, "begin takes two terms")
			}
			e, err := translateTerm(n.list[1])
			if err != nil {
				return nil, err
			}
			body, err := translateTerm(n.list[2])
			if err != nil {
				return nil, err
			}
			return lambda.LetUnit{E: e, Body: body, Pos: span}, nil
		case "perform", "let", "handle", "par", "produce", "consume":
			return nil, errAt(n.line, n.col, "%s is effectful; sequence it with let", head.sym)
		}
	}
	// Application, curried left to right.
	fn, err := translateTerm(n.list[0])
	if err != nil {
		return nil, err
	}
	if len(n.list) < 2 {
		return nil, errAt(n.line, n.col, "application needs an argument")
	}
	for _, argNode := range n.list[1:] {
		arg, err := translateTerm(argNode)
		if err != nil {
			return nil, err
		}
		fn = lambda.App{Fn: fn, Arg: arg, Pos: span}
	}
	return fn, nil
}

// (inl e [right-type]) / (inr e [left-type])
func translateInject(n *node, span lambda.Span) (lambda.Term, error) {
	if len(n.list) != 2 && len(n.list) != 3 {
		return nil, errAt(n.line, n.col, "%s takes a term and an optional type", n.list[0].sym)
	}
	value, err := translateTerm(n.list[1])
	if err != nil {
		return nil, err
	}
	other := lambda.Type(lambda.UnitType)
	if len(n.list) == 3 {
		if other, err = parseType(n.list[2]); err != nil {
			return nil, err
		}
	}
	if n.list[0].sym == "inl" {
		return lambda.Inl{Value: value, Right: other, Pos: span}, nil
	}
	return lambda.Inr{Value: value, Left: other, Pos: span}, nil
}

// (case e (inl x body) (inr y body))
func translateCase(n *node, span lambda.Span) (lambda.Term, error) {
	if len(n.list) != 4 {
		return nil, errAt(n.line, n.col, "case takes a scrutinee and two arms")
	}
	scrutinee, err := translateTerm(n.list[1])
	if err != nil {
		return nil, err
	}
	leftVar, leftBody, err := translateArm(n.list[2], "inl")
	if err != nil {
		return nil, err
	}
	rightVar, rightBody, err := translateArm(n.list[3], "inr")
	if err != nil {
		return nil, err
	}
	return lambda.Case{
		Scrutinee: scrutinee,
		LeftVar:   leftVar, LeftBody: leftBody,
		RightVar: rightVar, RightBody: rightBody,
		Pos: span,
	}, nil
}

func translateArm(n *node, tag string) (string, lambda.Term, error) {
	if n.kind != nList || len(n.list) != 3 || !n.list[0].isSym(tag) || n.list[1].kind != nSymbol {
		return "", nil, errAt(n.line, n.col, "case arm must be (%s var body)", tag)
	}
	body, err := translateTerm(n.list[2])
	if err != nil {
		return "", nil, err
	}
	return n.list[1].sym, body, nil
}

// (lambda (x [type]) body)
func translateLambda(n *node, span lambda.Span) (lambda.Term, error) {
	if len(n.list) != 3 {
		return nil, errAt(n.line, n.col, "lambda takes a parameter list and a body")
	}
	paramList := n.list[1]
	if paramList.kind != nList || len(paramList.list) < 1 || len(paramList.list) > 2 || paramList.list[0].kind != nSymbol {
		return nil, errAt(paramList.line, paramList.col, "lambda parameter must be (name) or (name type)")
	}
	paramType := lambda.Type(lambda.UnitType)
	if len(paramList.list) == 2 {
		var err error
		if paramType, err = parseType(paramList.list[1]); err != nil {
			return nil, err
		}
	}
	body, err := translateTerm(n.list[2])
	if err != nil {
		return nil, err
	}
	return lambda.Lam{
		Param:     paramList.list[0].sym,
		ParamType: paramType,
		Body:      body,
		Pos:       span,
	}, nil
}

// (let-pair (x y) e body)
func translateLetPair(n *node, span lambda.Span) (lambda.Term, error) {
	if len(n.list) != 4 {
		return nil, errAt(n.line, n.col, "let-pair takes (x y), a pair, and a body")
	}
	names := n.list[1]
	if names.kind != nList || len(names.list) != 2 ||
		names.list[0].kind != nSymbol || names.list[1].kind != nSymbol {
		return nil, errAt(names.line, names.col, "let-pair binders must be two symbols")
	}
	pair, err := translateTerm(n.list[2])
	if err != nil {
		return nil, err
	}
	body, err := translateTerm(n.list[3])
	if err != nil {
		return nil, err
	}
	return lambda.LetPair{
		X: names.list[0].sym, Y: names.list[1].sym,
		Pair: pair, Body: body, Pos: span,
	}, nil
}

func parseType(n *node) (lambda.Type, error) {
	if n.kind == nSymbol {
		switch n.sym {
		case "unit":
			return lambda.UnitType, nil
		case "bool":
			return lambda.BoolType, nil
		case "int":
			return lambda.IntType, nil
		case "symbol":
			return lambda.SymbolType, nil
		}
		return nil, errAt(n.line, n.col, "unknown type %q", n.sym)
	}
	if n.kind == nList && len(n.list) == 3 && n.list[0].kind == nSymbol {
		a, err := parseType(n.list[1])
		if err != nil {
			return nil, err
		}
		b, err := parseType(n.list[2])
		if err != nil {
			return nil, err
		}
		switch n.list[0].sym {
		case "tensor":
			return lambda.Tensor{A: a, B: b}, nil
		case "sum":
			return lambda.Sum{A: a, B: b}, nil
		case "lolli":
			return lambda.Lolli{A: a, B: b}, nil
		}
	}
	return nil, errAt(n.line, n.col, "malformed type")
}
