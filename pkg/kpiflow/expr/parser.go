package expr

// factorStart lists the token kinds that may begin a factor.
var factorStart = []Kind{KindInteger, KindLParen, KindRegex, KindPlus, KindMinus}

// Parser builds an AST from a token stream using one token of lookahead.
// Like Lexer, a Parser is single-use.
type Parser struct {
	lex *Lexer
	cur Token
}

// NewParser creates a parser reading from lex. It reads the first token
// immediately, so lexical errors at the start of input surface here.
func NewParser(lex *Lexer) (*Parser, error) {
	p := &Parser{lex: lex}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

// Parse parses text into an AST.
func Parse(text string) (Node, error) {
	p, err := NewParser(NewLexer(text))
	if err != nil {
		return nil, err
	}
	return p.Parse()
}

// Parse parses a complete expression. Any token left over after the
// expression is a syntax error.
func (p *Parser) Parse() (Node, error) {
	node, err := p.expression(1)
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != KindEOF {
		return nil, &SyntaxError{
			Pos:     p.cur.Pos,
			Found:   p.cur,
			Message: "unexpected token after expression",
		}
	}
	return node, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

// eat consumes the current token if it has the given kind.
func (p *Parser) eat(kind Kind) (Token, error) {
	tok := p.cur
	if tok.Kind != kind {
		return tok, p.unexpected(kind)
	}
	return tok, p.advance()
}

func (p *Parser) unexpected(expected ...Kind) *SyntaxError {
	return &SyntaxError{Pos: p.cur.Pos, Expected: expected, Found: p.cur}
}

// expression implements precedence climbing. The right operand of each
// operator is parsed with a threshold one above the operator's own
// precedence, so operators of equal precedence associate to the left.
func (p *Parser) expression(minPrec int) (Node, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := precedence[p.cur.Kind]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.expression(prec + 1)
		if err != nil {
			return nil, err
		}
		op, ok := tokenOperators[opTok.Kind]
		if !ok {
			return nil, &SyntaxError{Pos: opTok.Pos, Found: opTok, Message: "unsupported operator"}
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

// factor := INTEGER | LPAREN expression RPAREN | pattern-call | (PLUS|MINUS) factor
func (p *Parser) factor() (Node, error) {
	switch p.cur.Kind {
	case KindInteger:
		tok, err := p.eat(KindInteger)
		if err != nil {
			return nil, err
		}
		return &NumberLiteral{Value: tok.Int}, nil

	case KindLParen:
		if _, err := p.eat(KindLParen); err != nil {
			return nil, err
		}
		node, err := p.expression(1)
		if err != nil {
			return nil, err
		}
		if _, err := p.eat(KindRParen); err != nil {
			return nil, err
		}
		return node, nil

	case KindRegex:
		return p.patternCall()

	case KindPlus, KindMinus:
		op := tokenOperators[p.cur.Kind]
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: op, Operand: operand}, nil

	default:
		return nil, p.unexpected(factorStart...)
	}
}

// patternCall := REGEX LPAREN (STRING|INTEGER) COMMA PATTERN RPAREN
//
// An integer subject keeps its source text rather than its parsed value.
func (p *Parser) patternCall() (Node, error) {
	if _, err := p.eat(KindRegex); err != nil {
		return nil, err
	}
	if _, err := p.eat(KindLParen); err != nil {
		return nil, err
	}

	subject := p.cur
	if subject.Kind != KindString && subject.Kind != KindInteger {
		return nil, p.unexpected(KindString, KindInteger)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if _, err := p.eat(KindComma); err != nil {
		return nil, err
	}
	pattern, err := p.eat(KindPattern)
	if err != nil {
		return nil, err
	}
	if _, err := p.eat(KindRParen); err != nil {
		return nil, err
	}
	return &PatternMatch{Subject: subject.Text, Pattern: pattern.Text}, nil
}
