package expr

// binaryFunc computes the result of an arithmetic operator.
type binaryFunc func(left, right int64) (int64, error)

// precedence maps binary operator tokens to their binding strength.
// Higher binds tighter. Read-only after package initialization.
var precedence = map[Kind]int{
	KindPlus:  1,
	KindMinus: 1,
	KindMul:   2,
	KindDiv:   2,
}

// tokenOperators maps operator tokens to AST operator tags.
var tokenOperators = map[Kind]Operator{
	KindPlus:  OpAdd,
	KindMinus: OpSub,
	KindMul:   OpMul,
	KindDiv:   OpDiv,
}

// binaryOperations holds the evaluation function for each operator.
// Read-only after package initialization.
var binaryOperations = map[Operator]binaryFunc{
	OpAdd: func(l, r int64) (int64, error) { return l + r, nil },
	OpSub: func(l, r int64) (int64, error) { return l - r, nil },
	OpMul: func(l, r int64) (int64, error) { return l * r, nil },
	OpDiv: floorDiv,
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(l, r int64) (int64, error) {
	if r == 0 {
		return 0, ErrDivisionByZero
	}
	q := l / r
	if (l%r != 0) && ((l < 0) != (r < 0)) {
		q--
	}
	return q, nil
}
