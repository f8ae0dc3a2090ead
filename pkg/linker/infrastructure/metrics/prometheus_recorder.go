package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	metrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// PrometheusRecorder is a metrics.MetricRecorder backed by its own Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	sessionsStarted *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	stepDuration    *prometheus.HistogramVec
	itemOutcomes    *prometheus.CounterVec
	imagesListed    prometheus.Counter
	matchConfidence *prometheus.HistogramVec
	sessionCounters *prometheus.CounterVec
}

// NewPrometheusRecorder creates a PrometheusRecorder whose metric names start with namespace.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Scan sessions by final status (\"started\" counts launches).",
		}, []string{"status"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of finished scan sessions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of pipeline steps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "status"}),
		itemOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Processed items by step and outcome.",
		}, []string{"step", "outcome"}),
		imagesListed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_listed_total",
			Help:      "Image objects returned by storage listing.",
		}),
		matchConfidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_confidence",
			Help:      "Confidence of image to product matches.",
			Buckets:   []float64{30, 40, 50, 60, 70, 75, 80, 85, 90, 95, 100},
		}, []string{"source"}),
		sessionCounters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_records_total",
			Help:      "Records created by finished sessions.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		r.sessionsStarted,
		r.sessionDuration,
		r.stepDuration,
		r.itemOutcomes,
		r.imagesListed,
		r.matchConfidence,
		r.sessionCounters,
	)
	return r
}

// GetRegistry returns the registry to expose over HTTP.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordSessionStart(ctx context.Context, sessionID string) {
	r.sessionsStarted.WithLabelValues("started").Inc()
	logger.Debugf("Metrics: session %s started.", sessionID)
}

func (r *PrometheusRecorder) RecordSessionEnd(ctx context.Context, s *model.ScanSession) {
	if s == nil || s.CompletedAt == nil {
		return
	}
	status := string(s.Status)
	r.sessionsStarted.WithLabelValues(status).Inc()
	r.sessionDuration.WithLabelValues(status).Observe(s.Elapsed(*s.CompletedAt).Seconds())
	r.sessionCounters.WithLabelValues("links").Add(float64(s.Counters.DirectLinksCreated))
	r.sessionCounters.WithLabelValues("candidates").Add(float64(s.Counters.CandidatesCreated))
	r.sessionCounters.WithLabelValues("promoted").Add(float64(s.Counters.CandidatesPromoted))
}

func (r *PrometheusRecorder) RecordStepDuration(ctx context.Context, step, status string, d time.Duration) {
	r.stepDuration.WithLabelValues(step, status).Observe(d.Seconds())
}

func (r *PrometheusRecorder) RecordItemOutcome(ctx context.Context, step, outcome string) {
	r.itemOutcomes.WithLabelValues(step, outcome).Inc()
}

func (r *PrometheusRecorder) RecordImagesListed(ctx context.Context, count int) {
	if count > 0 {
		r.imagesListed.Add(float64(count))
	}
}

func (r *PrometheusRecorder) RecordMatch(ctx context.Context, source string, confidence int) {
	r.matchConfidence.WithLabelValues(source).Observe(float64(confidence))
	logger.Debugf("Metrics: match via %s at %d.", source, confidence)
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
