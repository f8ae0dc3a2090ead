package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// NoOpMetricRecorder discards everything.
type NoOpMetricRecorder struct{}

func NewNoOpMetricRecorder() MetricRecorder { return &NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordSessionStart(context.Context, string)                        {}
func (NoOpMetricRecorder) RecordSessionEnd(context.Context, *model.ScanSession)              {}
func (NoOpMetricRecorder) RecordStepDuration(context.Context, string, string, time.Duration) {}
func (NoOpMetricRecorder) RecordItemOutcome(context.Context, string, string)                 {}
func (NoOpMetricRecorder) RecordImagesListed(context.Context, int)                           {}
func (NoOpMetricRecorder) RecordMatch(context.Context, string, int)                          {}

// NoOpTracer creates no spans.
type NoOpTracer struct{}

func NewNoOpTracer() Tracer { return &NoOpTracer{} }

func (NoOpTracer) StartSessionSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStepSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error)                  {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var (
	_ MetricRecorder = (*NoOpMetricRecorder)(nil)
	_ Tracer         = (*NoOpTracer)(nil)
)
