package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for service operations.
var (
	// ErrKPINotFound indicates a referenced KPI doesn't exist.
	ErrKPINotFound = errors.New("KPI not found")

	// ErrNoLinkedKPI indicates an evaluated asset has no KPI linked to it.
	ErrNoLinkedKPI = errors.New("no KPI linked to this asset")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	// Field is the offending input field ("name", "asset_id", ...).
	Field string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// EvaluationError wraps an engine failure with the KPI and asset it
// happened for. Nothing is persisted when it is returned.
type EvaluationError struct {
	KPIID   string
	AssetID string
	// Err is the engine error (*expr.SyntaxError, *expr.LexError, ...).
	Err error
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate kpi %s for asset %s: %v", e.KPIID, e.AssetID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EvaluationError) Unwrap() error {
	return e.Err
}
