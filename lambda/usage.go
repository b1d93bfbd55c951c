package lambda

// UsageBounds counts the minimum and maximum free occurrences of a
// variable over the control-flow paths of a term. Case arms take the
// min and max across arms; sequential subterms add. Counts cap at 2,
// which is enough to classify every linearity discipline.
func UsageBounds(t Term, name string) (int, int) {
	switch term := t.(type) {
	case Var:
		if term.Name == name {
			return 1, 1
		}
		return 0, 0
	case Lit, UnitTerm:
		return 0, 0
	case Lam:
		if term.Param == name {
			return 0, 0
		}
		return UsageBounds(term.Body, name)
	case App:
		fmin, fmax := UsageBounds(term.Fn, name)
		amin, amax := UsageBounds(term.Arg, name)
		return capUse(fmin + amin), capUse(fmax + amax)
	case Pair:
		fmin, fmax := UsageBounds(term.First, name)
		smin, smax := UsageBounds(term.Second, name)
		return capUse(fmin + smin), capUse(fmax + smax)
	case LetPair:
		pmin, pmax := UsageBounds(term.Pair, name)
		if term.X == name || term.Y == name {
			return pmin, pmax
		}
		bmin, bmax := UsageBounds(term.Body, name)
		return capUse(pmin + bmin), capUse(pmax + bmax)
	case Inl:
		return UsageBounds(term.Value, name)
	case Inr:
		return UsageBounds(term.Value, name)
	case Case:
		smin, smax := UsageBounds(term.Scrutinee, name)
		lmin, lmax := 0, 0
		if term.LeftVar != name {
			lmin, lmax = UsageBounds(term.LeftBody, name)
		}
		rmin, rmax := 0, 0
		if term.RightVar != name {
			rmin, rmax = UsageBounds(term.RightBody, name)
		}
		bmin, bmax := lmin, lmax
		if rmin < bmin {
			bmin = rmin
		}
		if rmax > bmax {
			bmax = rmax
		}
		return capUse(smin + bmin), capUse(smax + bmax)
	case LetUnit:
		emin, emax := UsageBounds(term.E, name)
		bmin, bmax := UsageBounds(term.Body, name)
		return capUse(emin + bmin), capUse(emax + bmax)
	default:
		return 0, 0
	}
}

// CheckUsage enforces binder linearity on a possibly open term. Unlike
// Check it needs no typing context, so it applies to terms whose free
// variables are bound outside the lambda layer. Every binder in the
// term is held to its discipline; violations surface before any
// instruction is emitted.
func CheckUsage(t Term) error {
	switch term := t.(type) {
	case Var, Lit, UnitTerm:
		return nil
	case Lam:
		min, max := UsageBounds(term.Body, term.Param)
		if err := checkUsageBinder(term.Param, term.ParamLin, min, max, term.Pos); err != nil {
			return err
		}
		return CheckUsage(term.Body)
	case App:
		if err := CheckUsage(term.Fn); err != nil {
			return err
		}
		return CheckUsage(term.Arg)
	case Pair:
		if err := CheckUsage(term.First); err != nil {
			return err
		}
		return CheckUsage(term.Second)
	case LetPair:
		if err := CheckUsage(term.Pair); err != nil {
			return err
		}
		xmin, xmax := UsageBounds(term.Body, term.X)
		if err := checkUsageBinder(term.X, Linear, xmin, xmax, term.Pos); err != nil {
			return err
		}
		ymin, ymax := UsageBounds(term.Body, term.Y)
		if err := checkUsageBinder(term.Y, Linear, ymin, ymax, term.Pos); err != nil {
			return err
		}
		return CheckUsage(term.Body)
	case Inl:
		return CheckUsage(term.Value)
	case Inr:
		return CheckUsage(term.Value)
	case Case:
		if err := CheckUsage(term.Scrutinee); err != nil {
			return err
		}
		lmin, lmax := UsageBounds(term.LeftBody, term.LeftVar)
		if err := checkUsageBinder(term.LeftVar, Linear, lmin, lmax, term.Pos); err != nil {
			return err
		}
		if err := CheckUsage(term.LeftBody); err != nil {
			return err
		}
		rmin, rmax := UsageBounds(term.RightBody, term.RightVar)
		if err := checkUsageBinder(term.RightVar, Linear, rmin, rmax, term.Pos); err != nil {
			return err
		}
		return CheckUsage(term.RightBody)
	case LetUnit:
		if err := CheckUsage(term.E); err != nil {
			return err
		}
		return CheckUsage(term.Body)
	default:
		return nil
	}
}

func checkUsageBinder(name string, lin Linearity, min, max int, pos Span) error {
	switch lin {
	case Linear:
		switch {
		case max > 1:
			return &LinearityViolation{Variable: name, Reason: UsedTwice, Pos: pos}
		case max == 0:
			return &LinearityViolation{Variable: name, Reason: Unused, Pos: pos}
		case min == 0:
			return &LinearityViolation{Variable: name, Reason: NotUsedOnAllBranches, Pos: pos}
		}
	case Affine:
		if max > 1 {
			return &LinearityViolation{Variable: name, Reason: UsedTwice, Pos: pos}
		}
	case Relevant:
		switch {
		case max == 0:
			return &LinearityViolation{Variable: name, Reason: Unused, Pos: pos}
		case min == 0:
			return &LinearityViolation{Variable: name, Reason: NotUsedOnAllBranches, Pos: pos}
		}
	case Unrestricted:
	}
	return nil
}

func capUse(n int) int {
	if n > 2 {
		return 2
	}
	return n
}
