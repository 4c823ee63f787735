package expr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for evaluation.
var (
	// ErrDivisionByZero indicates the right operand of a division evaluated to zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrExpressionTooLong indicates the expression exceeded the evaluator's length cap.
	ErrExpressionTooLong = errors.New("expression too long")
)

// LexError reports text the lexer could not turn into a token.
type LexError struct {
	// Pos is the byte offset of the offending character.
	Pos int
	// Char is the offending character.
	Char rune
	// Message describes the failure.
	Message string
}

// Error implements the error interface.
func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %d: %s (%q)", e.Pos, e.Message, e.Char)
}

// SyntaxError reports a token that does not fit the grammar.
type SyntaxError struct {
	// Pos is the byte offset of the unexpected token.
	Pos int
	// Expected lists the token kinds that would have been accepted.
	// Empty when the parser expected end of input.
	Expected []Kind
	// Found is the token actually encountered.
	Found Token
	// Message overrides the default description when set.
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("syntax error at %d: %s, found %s", e.Pos, e.Message, e.Found)
	}
	names := make([]string, len(e.Expected))
	for i, k := range e.Expected {
		names[i] = k.String()
	}
	return fmt.Sprintf("syntax error at %d: expected %s, found %s",
		e.Pos, strings.Join(names, " or "), e.Found)
}

// UnsupportedOperationError reports an operator with no evaluation function.
type UnsupportedOperationError struct {
	Op Operator
}

// Error implements the error interface.
func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %s not supported", e.Op)
}

// PatternCompileError reports a pattern the regexp engine rejected.
type PatternCompileError struct {
	Pattern string
	Err     error
}

// Error implements the error interface.
func (e *PatternCompileError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap returns the underlying regexp error.
func (e *PatternCompileError) Unwrap() error {
	return e.Err
}

// TypeError reports an arithmetic operator applied to a boolean operand.
type TypeError struct {
	Op   Operator
	Kind ResultKind
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("operator %s cannot be applied to %s operand", e.Op, e.Kind)
}
