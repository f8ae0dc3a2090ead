package metrics

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/core/config"
	metrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
)

// ObservabilityParams are the inputs of NewObservability.
type ObservabilityParams struct {
	fx.In
	Config    *config.Config
	Lifecycle fx.Lifecycle
}

// ObservabilityResult exposes the recorder and tracer used by the pipeline. Prometheus is
// nil when Prometheus metrics are disabled.
type ObservabilityResult struct {
	fx.Out
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Prometheus *PrometheusRecorder
}

// NewObservability assembles the configured backends. Without any backend the no-op
// recorder and tracer are returned.
func NewObservability(p ObservabilityParams) (ObservabilityResult, error) {
	obs := p.Config.Linker.Observability
	var recorders metrics.Composite
	out := ObservabilityResult{Tracer: metrics.NewNoOpTracer()}

	if obs.Metrics.Enabled {
		out.Prometheus = NewPrometheusRecorder(obs.Metrics.Namespace)
		recorders = append(recorders, out.Prometheus)
	}

	if obs.OTel.Enabled {
		providers, err := NewOTelProviders(context.Background(), obs.OTel)
		if err != nil {
			return ObservabilityResult{}, err
		}
		p.Lifecycle.Append(fx.Hook{OnStop: providers.Shutdown})

		rec, err := NewOTelRecorder(providers.MeterProvider)
		if err != nil {
			return ObservabilityResult{}, err
		}
		recorders = append(recorders, rec)
		out.Tracer = NewOTelTracer(providers.TracerProvider)
	}

	switch len(recorders) {
	case 0:
		out.Recorder = metrics.NewNoOpMetricRecorder()
	case 1:
		out.Recorder = recorders[0]
	default:
		out.Recorder = recorders
	}
	return out, nil
}

// Module provides the metric recorder and tracer.
var Module = fx.Options(
	fx.Provide(NewObservability),
)
