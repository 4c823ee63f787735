// Package observability provides structured logging, metrics and tracing
// for kpiflow.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing have no-op implementations for when telemetry is disabled.
package observability

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewLogger builds a slog logger writing to w. format is "json" or "text";
// level is one of debug, info, warn or error (info when unrecognised).
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnrichLogger adds evaluation context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "asset-7", "kpi-123")
//	enriched.Info("evaluating") // includes asset_id and kpi_id
func EnrichLogger(logger *slog.Logger, assetID, kpiID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("asset_id", assetID),
		slog.String("kpi_id", kpiID),
	)
}

// LogEvaluationStart logs the start of a formula evaluation.
func LogEvaluationStart(logger *slog.Logger, expression string) {
	if logger == nil {
		return
	}
	logger.Debug("evaluation starting",
		slog.String("expression", expression),
	)
}

// LogEvaluationComplete logs a successful evaluation.
func LogEvaluationComplete(logger *slog.Logger, result string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("evaluation completed",
		slog.String("result", result),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogEvaluationError logs a failed evaluation.
func LogEvaluationError(logger *slog.Logger, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("evaluation failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogKPICreated logs creation of a KPI record.
func LogKPICreated(logger *slog.Logger, kpiID, name string) {
	if logger == nil {
		return
	}
	logger.Info("kpi created",
		slog.String("kpi_id", kpiID),
		slog.String("name", name),
	)
}

// LogAssetLinked logs a new asset to KPI link.
func LogAssetLinked(logger *slog.Logger, kpiID, assetID string) {
	if logger == nil {
		return
	}
	logger.Info("asset linked",
		slog.String("kpi_id", kpiID),
		slog.String("asset_id", assetID),
	)
}

// LogRetentionSweep logs a completed retention sweep.
func LogRetentionSweep(logger *slog.Logger, cutoff time.Time, deleted int64) {
	if logger == nil {
		return
	}
	logger.Info("retention sweep completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", deleted),
	)
}

// LogRetentionError logs a failed retention sweep (non-fatal).
func LogRetentionError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("retention sweep failed",
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
