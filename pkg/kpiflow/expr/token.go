package expr

import "fmt"

// Kind identifies the type of a lexical token.
type Kind uint8

const (
	KindEOF Kind = iota
	KindInteger
	KindPlus
	KindMinus
	KindMul
	KindDiv
	KindLParen
	KindRParen
	KindRegex   // Regex keyword
	KindPattern // "quoted pattern"
	KindString  // bare word
	KindComma
)

var kindNames = [...]string{
	KindEOF:     "EOF",
	KindInteger: "INTEGER",
	KindPlus:    "PLUS",
	KindMinus:   "MINUS",
	KindMul:     "MUL",
	KindDiv:     "DIV",
	KindLParen:  "LPAREN",
	KindRParen:  "RPAREN",
	KindRegex:   "REGEX",
	KindPattern: "PATTERN",
	KindString:  "STRING",
	KindComma:   "COMMA",
}

// String returns the upper-case tag for the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Token is a single lexical unit. Text holds the source text of the token
// (the unquoted body for patterns), Int the parsed value of integers and
// Pos the byte offset where the token starts.
type Token struct {
	Kind Kind
	Text string
	Int  int64
	Pos  int
}

// String renders the token for error messages and debugging.
func (t Token) String() string {
	switch t.Kind {
	case KindEOF:
		return "EOF"
	case KindInteger:
		return fmt.Sprintf("INTEGER(%d)", t.Int)
	default:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
	}
}

// operatorKinds maps single-character operators to their kinds.
var operatorKinds = map[byte]Kind{
	'+': KindPlus,
	'-': KindMinus,
	'*': KindMul,
	'/': KindDiv,
	'(': KindLParen,
	')': KindRParen,
}
