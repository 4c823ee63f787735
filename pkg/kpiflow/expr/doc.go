/*
Package expr evaluates KPI formulas against a single input value.

# Overview

A formula is a small arithmetic or pattern-matching expression. Before
evaluation the placeholder ATTR is replaced by the textual input value; the
resulting text is then lexed, parsed into an AST and evaluated.

	text -> Lexer -> tokens -> Parser -> AST -> Eval -> Result

# Expression Syntax

	<expression>   := <factor> ( <op> <expression> )*    (precedence climbing)
	<op>           := '+' | '-' | '*' | '/'
	<factor>       := INTEGER
	                | '(' <expression> ')'
	                | <pattern-call>
	                | ('+' | '-') <factor>
	<pattern-call> := 'Regex' '(' (WORD | INTEGER) ',' "pattern" ')'

'*' and '/' bind tighter than '+' and '-'. Operators of equal precedence
associate to the left, so 10 - 4 - 3 is 3. Division rounds toward negative
infinity.

# Tokens

Integers are runs of decimal digits. Words are runs of letters. Patterns are
delimited by double quotes and have no escape sequences. The keyword Regex is
case-sensitive and is recognised before words.

# Results

Arithmetic expressions produce an integer Result. A pattern call produces a
boolean Result: true when the pattern matches at the start of the subject.
The rest of the subject is not constrained.

	expr.EvaluateTemplate("ATTR * 2", "3")             // 6
	expr.EvaluateTemplate(`Regex(ATTR, "^dog")`, "doghouse") // true
	expr.Evaluate(`Regex(42, "^4")`)                   // true

# Errors

Failures are returned as *LexError, *SyntaxError, *UnsupportedOperationError,
*PatternCompileError, *TypeError or ErrDivisionByZero. Nothing is retried and
no partial result is produced.

# Thread Safety

Each evaluation owns its lexer, parser and tree. The operator tables are
package-level and never written after initialization, so evaluations may run
concurrently without coordination.
*/
package expr
