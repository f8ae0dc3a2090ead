package metrics

import "context"

// Tracer wraps sessions and steps in trace spans. The returned func ends the span.
type Tracer interface {
	StartSessionSpan(ctx context.Context, sessionID string) (context.Context, func())
	StartStepSpan(ctx context.Context, step string) (context.Context, func())
	// RecordError attaches err to the span in ctx.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds a named event with attributes to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
