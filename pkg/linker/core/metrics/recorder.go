// Package metrics defines the observability hooks called by the pipeline. Backends live in
// infrastructure/metrics; the no-op implementations here are used when they are disabled.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// Item outcomes reported through RecordItemOutcome.
const (
	OutcomeLink      = "link"
	OutcomeCandidate = "candidate"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
	OutcomePromoted  = "promoted"
)

// MetricRecorder records pipeline metrics.
type MetricRecorder interface {
	// RecordSessionStart counts a started session.
	RecordSessionStart(ctx context.Context, sessionID string)
	// RecordSessionEnd observes the final status and duration of a session.
	RecordSessionEnd(ctx context.Context, session *model.ScanSession)
	// RecordStepDuration observes how long a named step ran and how it ended ("ok" or "error").
	RecordStepDuration(ctx context.Context, step, status string, d time.Duration)
	// RecordItemOutcome counts one processed item of a step by outcome.
	RecordItemOutcome(ctx context.Context, step, outcome string)
	// RecordImagesListed counts objects returned by the storage lister.
	RecordImagesListed(ctx context.Context, count int)
	// RecordMatch observes the confidence of a match, labelled by extraction source.
	RecordMatch(ctx context.Context, source string, confidence int)
}

// Composite fans every call out to several recorders.
type Composite []MetricRecorder

func (c Composite) RecordSessionStart(ctx context.Context, id string) {
	for _, r := range c {
		r.RecordSessionStart(ctx, id)
	}
}

func (c Composite) RecordSessionEnd(ctx context.Context, s *model.ScanSession) {
	for _, r := range c {
		r.RecordSessionEnd(ctx, s)
	}
}

func (c Composite) RecordStepDuration(ctx context.Context, step, status string, d time.Duration) {
	for _, r := range c {
		r.RecordStepDuration(ctx, step, status, d)
	}
}

func (c Composite) RecordItemOutcome(ctx context.Context, step, outcome string) {
	for _, r := range c {
		r.RecordItemOutcome(ctx, step, outcome)
	}
}

func (c Composite) RecordImagesListed(ctx context.Context, n int) {
	for _, r := range c {
		r.RecordImagesListed(ctx, n)
	}
}

func (c Composite) RecordMatch(ctx context.Context, source string, confidence int) {
	for _, r := range c {
		r.RecordMatch(ctx, source, confidence)
	}
}

var _ MetricRecorder = Composite(nil)
