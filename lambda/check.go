package lambda

import "fmt"

// hypothesis is one context entry: a type with a linearity class.
type hypothesis struct {
	typ Type
	lin Linearity
}

// usage counts variable consumptions along the current path. Counts
// above 2 are indistinguishable from 2 for every linearity class, so
// they are capped there.
type usage map[string]int

// Check type-checks a closed term under the linearity discipline and
// returns its type. The checker is syntax-directed: one rule per term
// constructor, context splitting realized by counting occurrences.
func Check(t Term) (Type, error) {
	typ, _, err := check(t, map[string]hypothesis{})
	return typ, err
}

func check(t Term, ctx map[string]hypothesis) (Type, usage, error) {
	switch term := t.(type) {
	case Var:
		hyp, ok := ctx[term.Name]
		if !ok {
			return nil, nil, fmt.Errorf("lambda: %s: %w: %q", term.Pos, ErrUnboundVariable, term.Name)
		}
		return hyp.typ, usage{term.Name: 1}, nil

	case Lit:
		typ, err := LitType(term.Value)
		if err != nil {
			return nil, nil, err
		}
		return typ, usage{}, nil

	case Lam:
		restore := bind(ctx, term.Param, hypothesis{typ: term.ParamType, lin: term.ParamLin})
		bodyType, bodyUse, err := check(term.Body, ctx)
		restore()
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinder(term.Param, term.ParamLin, bodyUse, term.Pos); err != nil {
			return nil, nil, err
		}
		delete(bodyUse, term.Param)
		return Lolli{A: term.ParamType, B: bodyType}, bodyUse, nil

	case App:
		fnType, fnUse, err := check(term.Fn, ctx)
		if err != nil {
			return nil, nil, err
		}
		lolli, ok := fnType.(Lolli)
		if !ok {
			return nil, nil, &TypeMismatch{Expected: Lolli{A: UnitType, B: UnitType}, Found: fnType, Pos: term.Fn.Span()}
		}
		argType, argUse, err := check(term.Arg, ctx)
		if err != nil {
			return nil, nil, err
		}
		if !argType.Equal(lolli.A) {
			return nil, nil, &TypeMismatch{Expected: lolli.A, Found: argType, Pos: term.Arg.Span()}
		}
		use, err := mergeSequential(ctx, fnUse, argUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		return lolli.B, use, nil

	case Pair:
		firstType, firstUse, err := check(term.First, ctx)
		if err != nil {
			return nil, nil, err
		}
		secondType, secondUse, err := check(term.Second, ctx)
		if err != nil {
			return nil, nil, err
		}
		use, err := mergeSequential(ctx, firstUse, secondUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		return Tensor{A: firstType, B: secondType}, use, nil

	case LetPair:
		pairType, pairUse, err := check(term.Pair, ctx)
		if err != nil {
			return nil, nil, err
		}
		tensor, ok := pairType.(Tensor)
		if !ok {
			return nil, nil, &TypeMismatch{Expected: Tensor{A: UnitType, B: UnitType}, Found: pairType, Pos: term.Pair.Span()}
		}
		restoreX := bind(ctx, term.X, hypothesis{typ: tensor.A, lin: Linear})
		restoreY := bind(ctx, term.Y, hypothesis{typ: tensor.B, lin: Linear})
		bodyType, bodyUse, err := check(term.Body, ctx)
		restoreY()
		restoreX()
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinder(term.X, Linear, bodyUse, term.Pos); err != nil {
			return nil, nil, err
		}
		if err := checkBinder(term.Y, Linear, bodyUse, term.Pos); err != nil {
			return nil, nil, err
		}
		delete(bodyUse, term.X)
		delete(bodyUse, term.Y)
		use, err := mergeSequential(ctx, pairUse, bodyUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		return bodyType, use, nil

	case Inl:
		valType, valUse, err := check(term.Value, ctx)
		if err != nil {
			return nil, nil, err
		}
		return Sum{A: valType, B: term.Right}, valUse, nil

	case Inr:
		valType, valUse, err := check(term.Value, ctx)
		if err != nil {
			return nil, nil, err
		}
		return Sum{A: term.Left, B: valType}, valUse, nil

	case Case:
		scrType, scrUse, err := check(term.Scrutinee, ctx)
		if err != nil {
			return nil, nil, err
		}
		sum, ok := scrType.(Sum)
		if !ok {
			return nil, nil, &TypeMismatch{Expected: Sum{A: UnitType, B: UnitType}, Found: scrType, Pos: term.Scrutinee.Span()}
		}

		restoreL := bind(ctx, term.LeftVar, hypothesis{typ: sum.A, lin: Linear})
		leftType, leftUse, err := check(term.LeftBody, ctx)
		restoreL()
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinder(term.LeftVar, Linear, leftUse, term.Pos); err != nil {
			return nil, nil, err
		}
		delete(leftUse, term.LeftVar)

		restoreR := bind(ctx, term.RightVar, hypothesis{typ: sum.B, lin: Linear})
		rightType, rightUse, err := check(term.RightBody, ctx)
		restoreR()
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinder(term.RightVar, Linear, rightUse, term.Pos); err != nil {
			return nil, nil, err
		}
		delete(rightUse, term.RightVar)

		if !leftType.Equal(rightType) {
			return nil, nil, &TypeMismatch{Expected: leftType, Found: rightType, Pos: term.RightBody.Span()}
		}
		branchUse, err := mergeBranches(ctx, leftUse, rightUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		use, err := mergeSequential(ctx, scrUse, branchUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		return leftType, use, nil

	case UnitTerm:
		return UnitType, usage{}, nil

	case LetUnit:
		eType, eUse, err := check(term.E, ctx)
		if err != nil {
			return nil, nil, err
		}
		if !eType.Equal(UnitType) {
			return nil, nil, &TypeMismatch{Expected: UnitType, Found: eType, Pos: term.E.Span()}
		}
		bodyType, bodyUse, err := check(term.Body, ctx)
		if err != nil {
			return nil, nil, err
		}
		use, err := mergeSequential(ctx, eUse, bodyUse, term.Pos)
		if err != nil {
			return nil, nil, err
		}
		return bodyType, use, nil

	default:
		return nil, nil, fmt.Errorf("lambda: unknown term %T", t)
	}
}

// bind installs a hypothesis, returning a closure that restores the
// shadowed entry (or removes the name) when the scope closes.
func bind(ctx map[string]hypothesis, name string, hyp hypothesis) func() {
	old, shadowed := ctx[name]
	ctx[name] = hyp
	return func() {
		if shadowed {
			ctx[name] = old
		} else {
			delete(ctx, name)
		}
	}
}

// checkBinder enforces a binder's linearity class against the usage
// counted in its scope.
func checkBinder(name string, lin Linearity, use usage, pos Span) error {
	n := use[name]
	switch lin {
	case Linear:
		if n == 0 {
			return &LinearityViolation{Variable: name, Reason: Unused, Pos: pos}
		}
		if n > 1 {
			return &LinearityViolation{Variable: name, Reason: UsedTwice, Pos: pos}
		}
	case Affine:
		if n > 1 {
			return &LinearityViolation{Variable: name, Reason: UsedTwice, Pos: pos}
		}
	case Relevant:
		if n == 0 {
			return &LinearityViolation{Variable: name, Reason: Unused, Pos: pos}
		}
	case Unrestricted:
	}
	return nil
}

// mergeSequential combines usages of two subterms evaluated on the same
// path. Double consumption of a linear or affine hypothesis is caught
// here, at the earliest join point.
func mergeSequential(ctx map[string]hypothesis, a, b usage, pos Span) (usage, error) {
	out := make(usage, len(a)+len(b))
	for name, n := range a {
		out[name] = n
	}
	for name, n := range b {
		total := out[name] + n
		if total > 2 {
			total = 2
		}
		out[name] = total
		if total > 1 {
			if lin := ctx[name].lin; lin == Linear || lin == Affine {
				return nil, &LinearityViolation{Variable: name, Reason: UsedTwice, Pos: pos}
			}
		}
	}
	return out, nil
}

// mergeBranches combines usages of two case arms. Only one arm runs,
// so counts do not add; they must instead agree for every linear or
// relevant hypothesis.
func mergeBranches(ctx map[string]hypothesis, left, right usage, pos Span) (usage, error) {
	out := make(usage, len(left)+len(right))
	for name, n := range left {
		out[name] = n
	}
	for name, n := range right {
		if n > out[name] {
			out[name] = n
		}
	}
	for name := range out {
		if left[name] == right[name] {
			continue
		}
		if lin := ctx[name].lin; lin == Linear || lin == Relevant {
			return nil, &LinearityViolation{Variable: name, Reason: NotUsedOnAllBranches, Pos: pos}
		}
	}
	return out, nil
}
