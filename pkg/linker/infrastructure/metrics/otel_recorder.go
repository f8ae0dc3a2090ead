package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	metrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
)

// OTelRecorder is a metrics.MetricRecorder publishing OpenTelemetry instruments.
type OTelRecorder struct {
	sessions        metric.Int64Counter
	sessionDuration metric.Float64Histogram
	stepDuration    metric.Float64Histogram
	items           metric.Int64Counter
	imagesListed    metric.Int64Counter
	matchConfidence metric.Int64Histogram
}

// NewOTelRecorder creates the instruments on a meter obtained from mp.
func NewOTelRecorder(mp metric.MeterProvider) (*OTelRecorder, error) {
	m := mp.Meter(instrumentationName)
	r := &OTelRecorder{}
	var err error
	if r.sessions, err = m.Int64Counter("imagelink.sessions", metric.WithDescription("Scan sessions by status.")); err != nil {
		return nil, err
	}
	if r.sessionDuration, err = m.Float64Histogram("imagelink.session.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stepDuration, err = m.Float64Histogram("imagelink.step.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.items, err = m.Int64Counter("imagelink.items", metric.WithDescription("Processed items by step and outcome.")); err != nil {
		return nil, err
	}
	if r.imagesListed, err = m.Int64Counter("imagelink.images.listed"); err != nil {
		return nil, err
	}
	if r.matchConfidence, err = m.Int64Histogram("imagelink.match.confidence"); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelRecorder) RecordSessionStart(ctx context.Context, _ string) {
	r.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "started")))
}

func (r *OTelRecorder) RecordSessionEnd(ctx context.Context, s *model.ScanSession) {
	if s == nil || s.CompletedAt == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(s.Status)))
	r.sessions.Add(ctx, 1, attrs)
	r.sessionDuration.Record(ctx, s.Elapsed(*s.CompletedAt).Seconds(), attrs)
}

func (r *OTelRecorder) RecordStepDuration(ctx context.Context, step, status string, d time.Duration) {
	r.stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("step", step), attribute.String("status", status)))
}

func (r *OTelRecorder) RecordItemOutcome(ctx context.Context, step, outcome string) {
	r.items.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step), attribute.String("outcome", outcome)))
}

func (r *OTelRecorder) RecordImagesListed(ctx context.Context, count int) {
	if count > 0 {
		r.imagesListed.Add(ctx, int64(count))
	}
}

func (r *OTelRecorder) RecordMatch(ctx context.Context, source string, confidence int) {
	r.matchConfidence.Record(ctx, int64(confidence), metric.WithAttributes(attribute.String("source", source)))
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
