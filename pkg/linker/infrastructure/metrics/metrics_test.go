package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	coremetrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
)

func finishedSession() *model.ScanSession {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	s := model.NewScanSession("s1", 6, 70, 85, start)
	s.Status = model.SessionComplete
	s.CompletedAt = &end
	s.Counters = model.Counters{DirectLinksCreated: 3, CandidatesCreated: 2, CandidatesPromoted: 1}
	return s
}

func TestPrometheusRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewPrometheusRecorder("imagelink")

	r.RecordSessionStart(ctx, "s1")
	r.RecordItemOutcome(ctx, "write", coremetrics.OutcomeLink)
	r.RecordItemOutcome(ctx, "write", coremetrics.OutcomeLink)
	r.RecordItemOutcome(ctx, "write", coremetrics.OutcomeSkipped)
	r.RecordImagesListed(ctx, 1200)
	r.RecordImagesListed(ctx, -1)
	r.RecordMatch(ctx, "multi_sku", 90)
	r.RecordStepDuration(ctx, "match", "ok", time.Second)
	r.RecordSessionEnd(ctx, finishedSession())
	r.RecordSessionEnd(ctx, model.NewScanSession("live", 6, 70, 85, time.Now()))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsStarted.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsStarted.WithLabelValues("complete")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.itemOutcomes.WithLabelValues("write", "link")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemOutcomes.WithLabelValues("write", "skipped")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(r.imagesListed))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.sessionCounters.WithLabelValues("links")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.matchConfidence))

	families, err := r.GetRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["imagelink_items_total"])
	assert.True(t, names["imagelink_step_duration_seconds"])
	assert.True(t, names["go_goroutines"])
}

func TestOTelTracer_RecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOTelTracer(tp)

	ctx, endSession := tracer.StartSessionSpan(context.Background(), "s1")
	stepCtx, endStep := tracer.StartStepSpan(ctx, "scan-storage")
	tracer.RecordEvent(stepCtx, "page", map[string]interface{}{"offset": 500, "bucket": "b", "ok": true})
	tracer.RecordError(stepCtx, "lister", errors.New("listing failed"))
	tracer.RecordError(stepCtx, "lister", nil)
	endStep()
	endSession()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "step scan-storage", spans[0].Name())
	assert.Equal(t, "scan-session", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, "listing failed", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 2) // custom event + recorded exception
	assert.Equal(t, "page", spans[0].Events()[0].Name)
}

func TestOTelRecorder_Instruments(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := NewOTelRecorder(mp)
	require.NoError(t, err)
	r.RecordSessionStart(ctx, "s1")
	r.RecordItemOutcome(ctx, "write", coremetrics.OutcomeCandidate)
	r.RecordImagesListed(ctx, 42)
	r.RecordMatch(ctx, "exact_numeric_filename", 100)
	r.RecordStepDuration(ctx, "write", "ok", 2*time.Second)
	r.RecordSessionEnd(ctx, finishedSession())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	got := map[string]bool{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		got[m.Name] = true
	}
	for _, name := range []string{"imagelink.sessions", "imagelink.items", "imagelink.images.listed",
		"imagelink.match.confidence", "imagelink.step.duration", "imagelink.session.duration"} {
		assert.True(t, got[name], name)
	}
}

func TestComposite_FansOut(t *testing.T) {
	a := NewPrometheusRecorder("a")
	b := NewPrometheusRecorder("b")
	c := coremetrics.Composite{a, b, coremetrics.NewNoOpMetricRecorder()}
	c.RecordItemOutcome(context.Background(), "write", coremetrics.OutcomeError)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.itemOutcomes.WithLabelValues("write", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.itemOutcomes.WithLabelValues("write", "error")))
}
