package machine

import "math"

// Checked i64 arithmetic. Wrapping is disallowed; overflow is the fatal
// ArithmeticOverflow failure.

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b Int) (Int, error) {
	if (b > 0 && a > Int(math.MaxInt64)-b) || (b < 0 && a < Int(math.MinInt64)-b) {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow.
func CheckedSub(a, b Int) (Int, error) {
	if (b < 0 && a > Int(math.MaxInt64)+b) || (b > 0 && a < Int(math.MinInt64)+b) {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow.
func CheckedMul(a, b Int) (Int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a == Int(math.MinInt64) && b == -1 || b == Int(math.MinInt64) && a == -1 {
		return 0, ErrArithmeticOverflow
	}
	prod := a * b
	if prod/b != a {
		return 0, ErrArithmeticOverflow
	}
	return prod, nil
}
