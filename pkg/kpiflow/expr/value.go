package expr

import "strconv"

// ResultKind tells which field of a Result is meaningful.
type ResultKind uint8

const (
	// ResultInt is produced by arithmetic expressions.
	ResultInt ResultKind = iota + 1
	// ResultBool is produced by pattern calls.
	ResultBool
)

// String returns the kind name.
func (k ResultKind) String() string {
	switch k {
	case ResultInt:
		return "integer"
	case ResultBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Result is the value of an evaluated expression: an integer for
// arithmetic, a boolean for pattern calls.
type Result struct {
	Kind ResultKind
	Int  int64
	Bool bool
}

// IntResult wraps an integer.
func IntResult(v int64) Result { return Result{Kind: ResultInt, Int: v} }

// BoolResult wraps a boolean.
func BoolResult(v bool) Result { return Result{Kind: ResultBool, Bool: v} }

// String renders the result the way it is persisted: decimal digits for
// integers, "true" or "false" for booleans.
func (r Result) String() string {
	if r.Kind == ResultBool {
		return strconv.FormatBool(r.Bool)
	}
	return strconv.FormatInt(r.Int, 10)
}

// Value returns the result as int64 or bool.
func (r Result) Value() any {
	if r.Kind == ResultBool {
		return r.Bool
	}
	return r.Int
}

// MarshalJSON encodes the result as a bare JSON number or boolean.
func (r Result) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}
