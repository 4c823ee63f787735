package expr

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is the marker replaced by the input value before evaluation.
const Placeholder = "ATTR"

// Evaluator runs KPI formulas. The zero configuration substitutes
// Placeholder and imposes no length limit. An Evaluator holds no state
// between calls and is safe for concurrent use.
type Evaluator struct {
	placeholder string
	maxLength   int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPlaceholder changes the marker that EvaluateTemplate replaces.
func WithPlaceholder(p string) Option {
	return func(e *Evaluator) {
		if p != "" {
			e.placeholder = p
		}
	}
}

// WithMaxLength rejects expressions longer than n bytes (after
// substitution) with ErrExpressionTooLong. Zero disables the check.
func WithMaxLength(n int) Option {
	return func(e *Evaluator) {
		e.maxLength = n
	}
}

// New creates an Evaluator with the given options.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{placeholder: Placeholder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placeholder returns the marker this evaluator substitutes.
func (e *Evaluator) Placeholder() string {
	return e.placeholder
}

// Substitute replaces every occurrence of the evaluator's placeholder in
// template with value.
func (e *Evaluator) Substitute(template, value string) string {
	return strings.ReplaceAll(template, e.placeholder, value)
}

// Evaluate lexes, parses and evaluates text. The caller is expected to have
// substituted the input value already.
func (e *Evaluator) Evaluate(text string) (Result, error) {
	if e.maxLength > 0 && len(text) > e.maxLength {
		return Result{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrExpressionTooLong, len(text), e.maxLength)
	}
	tree, err := Parse(text)
	if err != nil {
		return Result{}, err
	}
	return Eval(tree)
}

// EvaluateTemplate substitutes value into template and evaluates the result.
func (e *Evaluator) EvaluateTemplate(template, value string) (Result, error) {
	return e.Evaluate(e.Substitute(template, value))
}

// Evaluate evaluates already-substituted text with the default evaluator.
func Evaluate(text string) (Result, error) {
	return New().Evaluate(text)
}

// EvaluateTemplate substitutes value for Placeholder in template and
// evaluates it with the default evaluator.
func EvaluateTemplate(template, value string) (Result, error) {
	return New().EvaluateTemplate(template, value)
}

// Substitute replaces every Placeholder in template with value.
func Substitute(template, value string) string {
	return strings.ReplaceAll(template, Placeholder, value)
}

// Eval walks a parsed tree and computes its result.
func Eval(node Node) (Result, error) {
	switch n := node.(type) {
	case *NumberLiteral:
		return IntResult(n.Value), nil

	case *BinaryOp:
		fn, ok := binaryOperations[n.Op]
		if !ok {
			return Result{}, &UnsupportedOperationError{Op: n.Op}
		}
		left, err := evalInt(n.Left, n.Op)
		if err != nil {
			return Result{}, err
		}
		right, err := evalInt(n.Right, n.Op)
		if err != nil {
			return Result{}, err
		}
		v, err := fn(left, right)
		if err != nil {
			return Result{}, err
		}
		return IntResult(v), nil

	case *UnaryOp:
		v, err := evalInt(n.Operand, n.Op)
		if err != nil {
			return Result{}, err
		}
		switch n.Op {
		case OpAdd:
			return IntResult(v), nil
		case OpSub:
			return IntResult(-v), nil
		default:
			return Result{}, &UnsupportedOperationError{Op: n.Op}
		}

	case *PatternMatch:
		matched, err := matchPrefix(n.Pattern, n.Subject)
		if err != nil {
			return Result{}, err
		}
		return BoolResult(matched), nil

	case nil:
		return Result{}, fmt.Errorf("eval: nil node")

	default:
		return Result{}, fmt.Errorf("eval: unknown node type %T", node)
	}
}

// evalInt evaluates an operand of op, which must be an integer.
func evalInt(node Node, op Operator) (int64, error) {
	r, err := Eval(node)
	if err != nil {
		return 0, err
	}
	if r.Kind != ResultInt {
		return 0, &TypeError{Op: op, Kind: r.Kind}
	}
	return r.Int, nil
}

// matchPrefix reports whether pattern matches at the start of subject. The
// rest of subject is unconstrained. Leftmost matching means a match exists
// at offset zero exactly when the first match found starts there.
func matchPrefix(pattern, subject string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, &PatternCompileError{Pattern: pattern, Err: err}
	}
	loc := re.FindStringIndex(subject)
	return loc != nil && loc[0] == 0, nil
}
