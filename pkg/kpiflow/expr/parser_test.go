package expr

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_Structure(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"2 + 3 * 4", "(2 + (3 * 4))"},
		{"(2 + 3) * 4", "((2 + 3) * 4)"},
		{"8 - 3 - 2", "((8 - 3) - 2)"},
		{"8 / 4 / 2", "((8 / 4) / 2)"},
		{"1 + 2 * 3 - 4", "((1 + (2 * 3)) - 4)"},
		{"2 * 3 + 4 * 5", "((2 * 3) + (4 * 5))"},
		{"((7))", "7"},
		{"-5", "(-5)"},
		{"+5", "(+5)"},
		{"2 * -3", "(2 * (-3))"},
		{"- - 4", "(-(-4))"},
		{"-(1 + 2)", "(-(1 + 2))"},
		{`Regex(dog, "^d")`, `Regex(dog, "^d")`},
		{`Regex(42, "^4")`, `Regex(42, "^4")`},
		{`Regex(007, "^0")`, `Regex(007, "^0")`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			node, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.input, err)
			}
			if got := node.String(); got != tt.want {
				t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_IntegerSubjectKeepsText(t *testing.T) {
	node, err := Parse(`Regex(007, "^00")`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pm, ok := node.(*PatternMatch)
	if !ok {
		t.Fatalf("got %T, want *PatternMatch", node)
	}
	if pm.Subject != "007" {
		t.Errorf("Subject = %q, want %q", pm.Subject, "007")
	}
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Kind
		found    Kind
		message  string
	}{
		{"missing right operand", "2 +", factorStart, KindEOF, ""},
		{"trailing paren", "2 + 3)", nil, KindRParen, "unexpected token after expression"},
		{"trailing integer", "2 3", nil, KindInteger, "unexpected token after expression"},
		{"unclosed paren", "(2 + 3", []Kind{KindRParen}, KindEOF, ""},
		{"empty input", "", factorStart, KindEOF, ""},
		{"bare word", "dog", factorStart, KindString, ""},
		{"missing pattern", `Regex(dog, `, []Kind{KindPattern}, KindEOF, ""},
		{"missing comma", `Regex(dog "x")`, []Kind{KindComma}, KindPattern, ""},
		{"missing close", `Regex(dog, "x"`, []Kind{KindRParen}, KindEOF, ""},
		{"missing open", `Regex dog`, []Kind{KindLParen}, KindString, ""},
		{"quoted subject", `Regex("x", "y")`, []Kind{KindString, KindInteger}, KindPattern, ""},
		{"two word subject", `Regex(dog house, "d")`, []Kind{KindComma}, KindString, ""},
		{"operator after operator", "2 * / 3", factorStart, KindDiv, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			var synErr *SyntaxError
			if !errors.As(err, &synErr) {
				t.Fatalf("Parse(%q) error = %v (%T), want *SyntaxError", tt.input, err, err)
			}
			if synErr.Found.Kind != tt.found {
				t.Errorf("Found = %s, want %s", synErr.Found.Kind, tt.found)
			}
			if len(synErr.Expected) != len(tt.expected) {
				t.Fatalf("Expected = %v, want %v", synErr.Expected, tt.expected)
			}
			for i := range tt.expected {
				if synErr.Expected[i] != tt.expected[i] {
					t.Errorf("Expected[%d] = %s, want %s", i, synErr.Expected[i], tt.expected[i])
				}
			}
			if tt.message != "" && !strings.Contains(synErr.Error(), tt.message) {
				t.Errorf("Error() = %q, want it to contain %q", synErr.Error(), tt.message)
			}
		})
	}
}

func TestParse_SyntaxErrorMessage(t *testing.T) {
	_, err := Parse(`Regex(dog, `)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "syntax error at 11: expected PATTERN, found EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParse_LexErrorsPassThrough(t *testing.T) {
	for _, input := range []string{"2 % 3", "%", `Regex(dog, "abc`} {
		_, err := Parse(input)
		var lexErr *LexError
		if !errors.As(err, &lexErr) {
			t.Errorf("Parse(%q) error = %v (%T), want *LexError", input, err, err)
		}
	}
}
