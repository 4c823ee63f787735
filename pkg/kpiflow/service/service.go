// Package service implements the KPI workflow around the formula engine:
// KPI records, asset links and evaluation of inbound telemetry messages.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/expr"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/observability"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
	"go.opentelemetry.io/otel/attribute"
)

// Message is an inbound telemetry reading for one asset attribute.
type Message struct {
	AssetID     string `json:"asset_id"`
	AttributeID string `json:"attribute_id"`
	// Timestamp is in the "2022-07-31T23:28:37Z[UTC]" form. See ParseTimestamp.
	Timestamp string `json:"timestamp"`
	// Value is a JSON number or string.
	Value any `json:"value"`
}

// Service coordinates the store and the expression engine.
// It is safe for concurrent use when its Store is.
type Service struct {
	store     store.Store
	evaluator *expr.Evaluator
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	clock     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSpanManager sets the span manager. Default: NoopSpanManager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Service) {
		if sm != nil {
			s.spans = sm
		}
	}
}

// WithEvaluator sets the expression evaluator, e.g. one with a custom
// placeholder or length cap. Default: expr.New().
func WithEvaluator(e *expr.Evaluator) Option {
	return func(s *Service) {
		if e != nil {
			s.evaluator = e
		}
	}
}

// WithClock sets the time source used for messages without a timestamp.
// Default: time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a Service backed by st.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		evaluator: expr.New(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluator returns the expression evaluator in use.
func (s *Service) Evaluator() *expr.Evaluator {
	return s.evaluator
}

// CreateKPI validates and stores a new KPI.
//
// The expression must parse once the placeholder is replaced by a number.
func (s *Service) CreateKPI(ctx context.Context, name, expression, description string) (store.KPI, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.KPI{}, &ValidationError{Field: "name", Message: "This field may not be blank."}
	}
	if strings.TrimSpace(expression) == "" {
		return store.KPI{}, &ValidationError{Field: "expression", Message: "This field may not be blank."}
	}
	if _, err := expr.Parse(s.evaluator.Substitute(expression, "0")); err != nil {
		return store.KPI{}, &ValidationError{Field: "expression", Message: err.Error()}
	}

	kpi, err := s.store.CreateKPI(ctx, store.KPI{
		Name:        name,
		Expression:  expression,
		Description: description,
	})
	if errors.Is(err, store.ErrDuplicateName) {
		return store.KPI{}, &ValidationError{Field: "name", Message: "KPI with this name already exists."}
	}
	if err != nil {
		return store.KPI{}, fmt.Errorf("create kpi: %w", err)
	}

	observability.LogKPICreated(s.logger, kpi.ID, kpi.Name)
	return kpi, nil
}

// ListKPIs returns every KPI in creation order.
func (s *Service) ListKPIs(ctx context.Context) ([]store.KPI, error) {
	kpis, err := s.store.ListKPIs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	return kpis, nil
}

// LinkAsset links assetID to the KPI kpiID.
// Returns ErrKPINotFound for an unknown KPI and store.ErrAssetAlreadyLinked
// when the asset is linked already.
func (s *Service) LinkAsset(ctx context.Context, kpiID, assetID string) (store.Link, error) {
	if kpiID == "" {
		return store.Link{}, &ValidationError{Field: "kpi", Message: "This field is required."}
	}
	if strings.TrimSpace(assetID) == "" {
		return store.Link{}, &ValidationError{Field: "asset_id", Message: "This field is required."}
	}

	link, err := s.store.LinkAsset(ctx, store.Link{KPIID: kpiID, AssetID: assetID})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.Link{}, fmt.Errorf("%w: %s", ErrKPINotFound, kpiID)
	case errors.Is(err, store.ErrAssetAlreadyLinked):
		return store.Link{}, err
	case err != nil:
		return store.Link{}, fmt.Errorf("link asset: %w", err)
	}

	observability.LogAssetLinked(s.logger, kpiID, assetID)
	return link, nil
}

// Evaluate runs the KPI linked to msg.AssetID against msg.Value and stores
// the outcome under attribute "output_<AttributeID>".
//
// Returns *ValidationError for malformed messages, ErrNoLinkedKPI when the
// asset has no KPI, and *EvaluationError when the formula fails. Nothing is
// stored on error.
func (s *Service) Evaluate(ctx context.Context, msg Message) (store.Result, error) {
	if msg.AssetID == "" {
		return store.Result{}, &ValidationError{Field: "asset_id", Message: "Asset ID is required in the message data."}
	}
	if msg.AttributeID == "" {
		return store.Result{}, &ValidationError{Field: "attribute_id", Message: "Attribute ID is required in the message data."}
	}

	kpi, err := s.store.LinkedKPI(ctx, msg.AssetID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Result{}, ErrNoLinkedKPI
	}
	if err != nil {
		return store.Result{}, fmt.Errorf("find linked kpi: %w", err)
	}

	timestamp := s.clock().UTC()
	if msg.Timestamp != "" {
		timestamp, err = ParseTimestamp(msg.Timestamp)
		if err != nil {
			return store.Result{}, &ValidationError{Field: "timestamp", Message: err.Error()}
		}
	}
	value, err := FormatValue(msg.Value)
	if err != nil {
		return store.Result{}, &ValidationError{Field: "value", Message: err.Error()}
	}

	logger := observability.EnrichLogger(s.logger, msg.AssetID, kpi.ID)
	ctx, span := s.spans.StartEvaluationSpan(ctx, msg.AssetID, kpi.ID)
	observability.LogEvaluationStart(logger, kpi.Expression)

	done := observability.TimedOperation()
	result, evalErr := s.evaluator.EvaluateTemplate(kpi.Expression, value)
	durationMs := done()
	duration := time.Duration(math.Round(durationMs*1000)) * time.Microsecond

	resultKind := ""
	if evalErr == nil {
		resultKind = result.Kind.String()
	}
	s.metrics.RecordEvaluation(ctx, kpi.ID, resultKind, duration, evalErr)

	if evalErr != nil {
		err := &EvaluationError{KPIID: kpi.ID, AssetID: msg.AssetID, Err: evalErr}
		observability.LogEvaluationError(logger, err, durationMs)
		s.spans.EndSpanWithError(span, err)
		return store.Result{}, err
	}
	observability.LogEvaluationComplete(logger, result.String(), durationMs)
	s.spans.AddSpanEvent(ctx, "evaluated", attribute.String("result", result.String()))

	saved, err := s.store.SaveResult(ctx, store.Result{
		AssetID:     msg.AssetID,
		AttributeID: "output_" + msg.AttributeID,
		Timestamp:   timestamp,
		Value:       result.String(),
	})
	if err != nil {
		err = fmt.Errorf("save result: %w", err)
	}
	s.spans.EndSpanWithError(span, err)
	if err != nil {
		return store.Result{}, err
	}
	return saved, nil
}

// EvaluateExpression substitutes value into expression and evaluates it
// without touching the store.
func (s *Service) EvaluateExpression(expression, value string) (expr.Result, error) {
	return s.evaluator.EvaluateTemplate(expression, value)
}

// ListResults returns stored results matching filter.
func (s *Service) ListResults(ctx context.Context, filter store.ResultFilter) ([]store.Result, error) {
	results, err := s.store.ListResults(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

// PruneResults deletes results created before cutoff and records the count.
func (s *Service) PruneResults(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.DeleteResultsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	s.metrics.RecordResultsPruned(ctx, n)
	observability.LogRetentionSweep(s.logger, cutoff, n)
	return n, nil
}
