package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records kpiflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEvaluation records one formula evaluation. resultKind is empty
	// when the evaluation failed.
	RecordEvaluation(ctx context.Context, kpiID, resultKind string, duration time.Duration, err error)

	// RecordResultsPruned records results removed by a retention sweep.
	RecordResultsPruned(ctx context.Context, count int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	evaluations       metric.Int64Counter
	evaluationLatency metric.Float64Histogram
	evaluationErrors  metric.Int64Counter
	resultsPruned     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("kpiflow")

	evaluations, err := meter.Int64Counter("kpiflow.evaluations",
		metric.WithDescription("Number of formula evaluations"),
	)
	if err != nil {
		return nil, err
	}

	evaluationLatency, err := meter.Float64Histogram("kpiflow.evaluation.latency_ms",
		metric.WithDescription("Formula evaluation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	evaluationErrors, err := meter.Int64Counter("kpiflow.evaluation.errors",
		metric.WithDescription("Number of failed formula evaluations"),
	)
	if err != nil {
		return nil, err
	}

	resultsPruned, err := meter.Int64Counter("kpiflow.results.pruned",
		metric.WithDescription("Number of evaluation results removed by retention"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		evaluations:       evaluations,
		evaluationLatency: evaluationLatency,
		evaluationErrors:  evaluationErrors,
		resultsPruned:     resultsPruned,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider, so configure the
// provider with otel.SetMeterProvider before calling this function.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEvaluation records an evaluation.
func (m *otelMetrics) RecordEvaluation(ctx context.Context, kpiID, resultKind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kpi_id", kpiID),
		attribute.Bool("success", err == nil),
	}
	if resultKind != "" {
		attrs = append(attrs, attribute.String("result_kind", resultKind))
	}

	m.evaluations.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.evaluationLatency.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))

	if err != nil {
		m.evaluationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kpi_id", kpiID)))
	}
}

// RecordResultsPruned records a retention sweep.
func (m *otelMetrics) RecordResultsPruned(ctx context.Context, count int64) {
	m.resultsPruned.Add(ctx, count)
}
