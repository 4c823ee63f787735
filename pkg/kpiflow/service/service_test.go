package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/expr"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/observability"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/service"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type evaluationCall struct {
	kpiID      string
	resultKind string
	duration   time.Duration
	err        error
}

// recordingMetrics captures metric calls for assertions.
type recordingMetrics struct {
	mu          sync.Mutex
	evaluations []evaluationCall
	pruned      int64
}

func (r *recordingMetrics) RecordEvaluation(_ context.Context, kpiID, resultKind string, duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluations = append(r.evaluations, evaluationCall{kpiID: kpiID, resultKind: resultKind, duration: duration, err: err})
}

func (r *recordingMetrics) RecordResultsPruned(_ context.Context, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned += count
}

// testSpanManager routes spans to an in-memory exporter.
type testSpanManager struct {
	tracer trace.Tracer
}

func (m testSpanManager) StartEvaluationSpan(ctx context.Context, assetID, kpiID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "kpiflow.evaluate", trace.WithAttributes(
		attribute.String("asset.id", assetID),
		attribute.String("kpi.id", kpiID),
	))
}

func (m testSpanManager) EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (m testSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func newService(t *testing.T, opts ...service.Option) (*service.Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	return service.New(st, opts...), st
}

func createLinked(t *testing.T, svc *service.Service, name, expression, assetID string) store.KPI {
	t.Helper()
	ctx := context.Background()
	kpi, err := svc.CreateKPI(ctx, name, expression, "")
	require.NoError(t, err)
	_, err = svc.LinkAsset(ctx, kpi.ID, assetID)
	require.NoError(t, err)
	return kpi
}

func TestCreateKPI(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	kpi, err := svc.CreateKPI(ctx, "Doubler", "ATTR * 2", "doubles the reading")
	require.NoError(t, err)
	assert.NotEmpty(t, kpi.ID)
	assert.Equal(t, "Doubler", kpi.Name)
	assert.Equal(t, "doubles the reading", kpi.Description)

	list, err := svc.ListKPIs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, kpi.ID, list[0].ID)
}

func TestCreateKPI_Validation(t *testing.T) {
	tests := []struct {
		name       string
		kpiName    string
		expression string
		field      string
	}{
		{"blank name", "  ", "ATTR", "name"},
		{"blank expression", "KPI", "", "expression"},
		{"unparsable expression", "KPI", "ATTR +", "expression"},
		{"bad character", "KPI", "ATTR $ 1", "expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			_, err := svc.CreateKPI(context.Background(), tt.kpiName, tt.expression, "")

			var ve *service.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateKPI_DuplicateName(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateKPI(ctx, "Same", "ATTR", "")
	require.NoError(t, err)
	_, err = svc.CreateKPI(ctx, "Same", "ATTR + 1", "")

	var ve *service.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
}

func TestLinkAsset(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	kpi, err := svc.CreateKPI(ctx, "K", "ATTR", "")
	require.NoError(t, err)

	link, err := svc.LinkAsset(ctx, kpi.ID, "123")
	require.NoError(t, err)
	assert.Equal(t, kpi.ID, link.KPIID)
	assert.Equal(t, "123", link.AssetID)

	_, err = svc.LinkAsset(ctx, kpi.ID, "123")
	assert.ErrorIs(t, err, store.ErrAssetAlreadyLinked)

	_, err = svc.LinkAsset(ctx, "missing", "456")
	assert.ErrorIs(t, err, service.ErrKPINotFound)

	var ve *service.ValidationError
	_, err = svc.LinkAsset(ctx, kpi.ID, "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "asset_id", ve.Field)

	_, err = svc.LinkAsset(ctx, "", "789")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "kpi", ve.Field)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		value      any
		want       string
	}{
		{"integer arithmetic", "ATTR + 2", float64(5), "7"},
		{"integral float", "ATTR * 2", float64(5.0), "10"},
		{"string number", "ATTR - 1", "10", "9"},
		{"floor division", "ATTR / 2", float64(-7), "-4"},
		{"pattern match", `Regex(ATTR, "^dog")`, "dogfood", "true"},
		{"pattern miss", `Regex(ATTR, "cat")`, "dogcat", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			createLinked(t, svc, "K", tt.expression, "123")

			got, err := svc.Evaluate(context.Background(), service.Message{
				AssetID:     "123",
				AttributeID: "456",
				Timestamp:   "2022-07-31T23:28:37Z[UTC]",
				Value:       tt.value,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, "123", got.AssetID)
			assert.Equal(t, "output_456", got.AttributeID)
			assert.Equal(t, time.Date(2022, 7, 31, 23, 28, 37, 0, time.UTC), got.Timestamp)
		})
	}
}

func TestEvaluate_PersistsResult(t *testing.T) {
	svc, _ := newService(t)
	createLinked(t, svc, "K", "ATTR + 1", "a1")
	createLinked(t, svc, "K2", "ATTR + 2", "a2")
	ctx := context.Background()

	for _, asset := range []string{"a1", "a2"} {
		_, err := svc.Evaluate(ctx, service.Message{AssetID: asset, AttributeID: "x", Timestamp: "2022-07-31T23:28:37Z", Value: "1"})
		require.NoError(t, err)
	}

	results, err := svc.ListResults(ctx, store.ResultFilter{AssetID: "a2"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "3", results[0].Value)
}

func TestEvaluate_Errors(t *testing.T) {
	svc, st := newService(t)
	createLinked(t, svc, "Bad", "ATTR / 0", "div")
	createLinked(t, svc, "Words", "ATTR + 1", "words")
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, service.Message{AttributeID: "1", Value: "1"})
	var ve *service.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "asset_id", ve.Field)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "div", Value: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "attribute_id", ve.Field)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "nobody", AttributeID: "1", Value: "1"})
	assert.ErrorIs(t, err, service.ErrNoLinkedKPI)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "div", AttributeID: "1", Timestamp: "yesterday", Value: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "timestamp", ve.Field)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "div", AttributeID: "1"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "value", ve.Field)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "div", AttributeID: "1", Value: "1"})
	var ee *service.EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "div", ee.AssetID)
	assert.ErrorIs(t, err, expr.ErrDivisionByZero)

	_, err = svc.Evaluate(ctx, service.Message{AssetID: "words", AttributeID: "1", Value: "hello"})
	require.ErrorAs(t, err, &ee)
	var se *expr.SyntaxError
	assert.ErrorAs(t, err, &se)

	results, err := st.ListResults(ctx, store.ResultFilter{})
	require.NoError(t, err)
	assert.Empty(t, results, "failed evaluations store nothing")
}

func TestEvaluate_DefaultsTimestampToClock(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, _ := newService(t, service.WithClock(func() time.Time { return fixed }))
	createLinked(t, svc, "K", "ATTR", "a")

	got, err := svc.Evaluate(context.Background(), service.Message{AssetID: "a", AttributeID: "v", Value: float64(3)})
	require.NoError(t, err)
	assert.Equal(t, fixed, got.Timestamp)
}

func TestEvaluate_CustomEvaluator(t *testing.T) {
	svc, _ := newService(t, service.WithEvaluator(expr.New(expr.WithPlaceholder("VALUE"))))
	createLinked(t, svc, "K", "VALUE * 3", "a")

	got, err := svc.Evaluate(context.Background(), service.Message{AssetID: "a", AttributeID: "v", Value: "2"})
	require.NoError(t, err)
	assert.Equal(t, "6", got.Value)
}

func TestEvaluate_Metrics(t *testing.T) {
	metrics := &recordingMetrics{}
	svc, _ := newService(t, service.WithMetrics(metrics))
	kpi := createLinked(t, svc, "K", "ATTR / 0", "a")
	ok := createLinked(t, svc, "OK", "ATTR", "b")
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, service.Message{AssetID: "a", AttributeID: "v", Value: "1"})
	require.Error(t, err)
	_, err = svc.Evaluate(ctx, service.Message{AssetID: "b", AttributeID: "v", Value: "1"})
	require.NoError(t, err)

	require.Len(t, metrics.evaluations, 2)
	assert.Equal(t, kpi.ID, metrics.evaluations[0].kpiID)
	assert.Empty(t, metrics.evaluations[0].resultKind)
	assert.Error(t, metrics.evaluations[0].err)
	assert.Equal(t, ok.ID, metrics.evaluations[1].kpiID)
	assert.Equal(t, "integer", metrics.evaluations[1].resultKind)
	assert.NoError(t, metrics.evaluations[1].err)
}

func TestEvaluate_DurationMatchesLog(t *testing.T) {
	var buf bytes.Buffer
	metrics := &recordingMetrics{}
	svc, _ := newService(t,
		service.WithMetrics(metrics),
		service.WithLogger(observability.NewLogger("info", "json", &buf)),
	)
	createLinked(t, svc, "K", "ATTR * 3", "a")

	_, err := svc.Evaluate(context.Background(), service.Message{AssetID: "a", AttributeID: "v", Value: "2"})
	require.NoError(t, err)
	require.Len(t, metrics.evaluations, 1)

	var logged float64
	found := false
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "evaluation completed" {
			logged, found = entry["duration_ms"].(float64)
		}
	}
	require.True(t, found, buf.String())
	assert.Equal(t, float64(metrics.evaluations[0].duration.Microseconds())/1000, logged)
}

func TestEvaluate_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	svc, _ := newService(t, service.WithSpanManager(testSpanManager{tracer: provider.Tracer("test")}))
	createLinked(t, svc, "OK", "ATTR + 1", "a")
	createLinked(t, svc, "Bad", "ATTR / 0", "b")
	ctx := context.Background()

	_, err := svc.Evaluate(ctx, service.Message{AssetID: "a", AttributeID: "v", Value: "1"})
	require.NoError(t, err)
	_, err = svc.Evaluate(ctx, service.Message{AssetID: "b", AttributeID: "v", Value: "1"})
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "kpiflow.evaluate", spans[0].Name)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "evaluated", spans[0].Events[0].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestEvaluateExpression(t *testing.T) {
	svc, st := newService(t)

	got, err := svc.EvaluateExpression("ATTR * (2 + 3)", "4")
	require.NoError(t, err)
	assert.Equal(t, expr.IntResult(20), got)

	_, err = svc.EvaluateExpression(`Regex(ATTR, "(")`, "x")
	var pe *expr.PatternCompileError
	assert.ErrorAs(t, err, &pe)

	results, err := st.ListResults(context.Background(), store.ResultFilter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPruneResults(t *testing.T) {
	metrics := &recordingMetrics{}
	svc, _ := newService(t, service.WithMetrics(metrics))
	createLinked(t, svc, "K", "ATTR", "a")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Evaluate(ctx, service.Message{AssetID: "a", AttributeID: "v", Value: "1"})
		require.NoError(t, err)
	}

	n, err := svc.PruneResults(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(3), metrics.pruned)
}

func TestService_ClosedStore(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.Close())

	_, err := svc.ListKPIs(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	_, err = svc.Evaluate(context.Background(), service.Message{AssetID: "a", AttributeID: "v", Value: "1"})
	assert.True(t, errors.Is(err, store.ErrStoreClosed))
}

func TestEvaluate_Concurrent(t *testing.T) {
	svc, st := newService(t)
	createLinked(t, svc, "K", "ATTR * 2", "a")
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(v int) {
			defer wg.Done()
			_, err := svc.Evaluate(ctx, service.Message{AssetID: "a", AttributeID: "v", Value: float64(v)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	results, err := st.ListResults(ctx, store.ResultFilter{AssetID: "a"})
	require.NoError(t, err)
	assert.Len(t, results, n)
}
