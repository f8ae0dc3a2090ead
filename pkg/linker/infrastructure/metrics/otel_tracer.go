package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	metrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
)

// OTelTracer is a metrics.Tracer creating OpenTelemetry spans.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer creates an OTelTracer from any trace provider.
func NewOTelTracer(tp trace.TracerProvider) *OTelTracer {
	return &OTelTracer{tracer: tp.Tracer(instrumentationName)}
}

func (t *OTelTracer) StartSessionSpan(ctx context.Context, sessionID string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "scan-session",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	return ctx, func() { span.End() }
}

func (t *OTelTracer) StartStepSpan(ctx context.Context, step string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+step, trace.WithAttributes(attribute.String("step.name", step)))
	return ctx, func() { span.End() }
}

func (t *OTelTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

func (t *OTelTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(in map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return out
}

var _ metrics.Tracer = (*OTelTracer)(nil)
