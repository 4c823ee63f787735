package expr

import (
	"fmt"
	"strconv"
)

// Operator tags arithmetic operations. OpAdd and OpSub double as unary plus
// and minus inside a UnaryOp.
type Operator uint8

const (
	OpAdd Operator = iota + 1
	OpSub
	OpMul
	OpDiv
)

// String returns the operator's symbol.
func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	default:
		return fmt.Sprintf("Operator(%d)", o)
	}
}

// Node is a parsed expression. The set of implementations is closed:
// *NumberLiteral, *BinaryOp, *UnaryOp and *PatternMatch. Nodes are never
// modified after the parser builds them.
type Node interface {
	fmt.Stringer
	node()
}

// NumberLiteral is an integer constant.
type NumberLiteral struct {
	Value int64
}

// BinaryOp applies Op to the results of Left and Right.
type BinaryOp struct {
	Op    Operator
	Left  Node
	Right Node
}

// UnaryOp applies a sign to Operand.
type UnaryOp struct {
	Op      Operator
	Operand Node
}

// PatternMatch tests Pattern against the literal text of Subject.
type PatternMatch struct {
	Subject string
	Pattern string
}

func (*NumberLiteral) node() {}
func (*BinaryOp) node()      {}
func (*UnaryOp) node()       {}
func (*PatternMatch) node()  {}

func (n *NumberLiteral) String() string { return strconv.FormatInt(n.Value, 10) }

func (n *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}

func (n *UnaryOp) String() string {
	return fmt.Sprintf("(%s%s)", n.Op, n.Operand)
}

func (n *PatternMatch) String() string {
	return fmt.Sprintf("Regex(%s, %q)", n.Subject, n.Pattern)
}
