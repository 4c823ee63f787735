package expr

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const regexKeyword = "Regex"

// Lexer splits expression text into tokens. A Lexer is single-use and not
// safe for concurrent use; create one per evaluation.
type Lexer struct {
	text   string
	cursor int
}

// NewLexer creates a lexer positioned at the start of text.
func NewLexer(text string) *Lexer {
	return &Lexer{text: text}
}

// Next returns the next token and advances the cursor. Once the input is
// exhausted every call returns a KindEOF token.
//
// Rules are tried in a fixed order and the first match wins: whitespace is
// skipped, then integer, the Regex keyword, single-character operators,
// quoted pattern, bare word, comma and finally end of input.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()

	if l.cursor >= len(l.text) {
		return Token{Kind: KindEOF, Pos: l.cursor}, nil
	}

	start := l.cursor
	ch := l.text[l.cursor]

	switch {
	case isDigit(ch):
		return l.scanInteger()
	case strings.HasPrefix(l.text[l.cursor:], regexKeyword):
		l.cursor += len(regexKeyword)
		return Token{Kind: KindRegex, Text: regexKeyword, Pos: start}, nil
	}

	if kind, ok := operatorKinds[ch]; ok {
		l.cursor++
		return Token{Kind: kind, Text: string(ch), Pos: start}, nil
	}

	if ch == '"' {
		return l.scanPattern()
	}

	if r, _ := utf8.DecodeRuneInString(l.text[l.cursor:]); unicode.IsLetter(r) {
		return l.scanWord(), nil
	}

	if ch == ',' {
		l.cursor++
		return Token{Kind: KindComma, Text: ",", Pos: start}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.text[l.cursor:])
	return Token{}, &LexError{Pos: start, Char: r, Message: "unexpected character"}
}

// Tokenize drains a lexer over text, returning every token up to and
// including the terminating EOF.
func Tokenize(text string) ([]Token, error) {
	l := NewLexer(text)
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == KindEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.cursor < len(l.text) {
		r, size := utf8.DecodeRuneInString(l.text[l.cursor:])
		if !unicode.IsSpace(r) {
			return
		}
		l.cursor += size
	}
}

func (l *Lexer) scanInteger() (Token, error) {
	start := l.cursor
	for l.cursor < len(l.text) && isDigit(l.text[l.cursor]) {
		l.cursor++
	}
	text := l.text[start:l.cursor]
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return Token{}, &LexError{Pos: start, Char: rune(text[0]), Message: "integer literal out of range: " + text}
	}
	return Token{Kind: KindInteger, Text: text, Int: n, Pos: start}, nil
}

// scanPattern consumes a "..." literal. There are no escape sequences; the
// body ends at the next double quote.
func (l *Lexer) scanPattern() (Token, error) {
	start := l.cursor
	l.cursor++ // opening quote
	end := strings.IndexByte(l.text[l.cursor:], '"')
	if end < 0 {
		l.cursor = len(l.text)
		return Token{}, &LexError{Pos: start, Char: '"', Message: "unterminated pattern literal"}
	}
	body := l.text[l.cursor : l.cursor+end]
	l.cursor += end + 1
	return Token{Kind: KindPattern, Text: body, Pos: start}, nil
}

func (l *Lexer) scanWord() Token {
	start := l.cursor
	for l.cursor < len(l.text) {
		r, size := utf8.DecodeRuneInString(l.text[l.cursor:])
		if !unicode.IsLetter(r) {
			break
		}
		l.cursor += size
	}
	return Token{Kind: KindString, Text: l.text[start:l.cursor], Pos: start}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
