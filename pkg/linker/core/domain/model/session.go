package model

import (
	"time"
)

// SessionStatus is the lifecycle state of a ScanSession.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionRunning      SessionStatus = "running"
	SessionComplete     SessionStatus = "complete"
	SessionError        SessionStatus = "error"
)

// IsFinished reports whether the status is terminal.
func (s SessionStatus) IsFinished() bool {
	return s == SessionComplete || s == SessionError
}

// Counters are the running totals of one session. They only ever grow.
type Counters struct {
	CandidatesPromoted int64 `json:"candidates_promoted"`
	ProductsScanned    int64 `json:"products_scanned"`
	ImagesScanned      int64 `json:"images_scanned"`
	DirectLinksCreated int64 `json:"direct_links_created"`
	CandidatesCreated  int64 `json:"candidates_created"`
}

// Add accumulates delta into c. Negative components are ignored.
func (c *Counters) Add(delta Counters) {
	add := func(dst *int64, v int64) {
		if v > 0 {
			*dst += v
		}
	}
	add(&c.CandidatesPromoted, delta.CandidatesPromoted)
	add(&c.ProductsScanned, delta.ProductsScanned)
	add(&c.ImagesScanned, delta.ImagesScanned)
	add(&c.DirectLinksCreated, delta.DirectLinksCreated)
	add(&c.CandidatesCreated, delta.CandidatesCreated)
}

// SessionSummary is the final report stored on a completed session.
type SessionSummary struct {
	DurationSeconds float64          `json:"duration_seconds"`
	MatchesFound    int              `json:"matches_found"`
	Skipped         int              `json:"skipped"`
	ErrorCount      int              `json:"error_count"`
	BySource        map[string]int   `json:"by_source,omitempty"`
	SkipReasons     map[string]int   `json:"skip_reasons,omitempty"`
	ReportObject    string           `json:"report_object,omitempty"`
	Counters        Counters         `json:"counters"`
	Extra           map[string]int64 `json:"extra,omitempty"`
}

// ScanSession is the persisted, pollable state of one pipeline run.
type ScanSession struct {
	ID                  string
	Status              SessionStatus
	CurrentStepIndex    int
	TotalSteps          int
	StepName            string
	ProgressPercent     float64
	Counters            Counters
	Errors              FailureList
	StepErrors          StepFailures
	Summary             *SessionSummary
	ConfidenceThreshold int
	HighThreshold       int
	StartedAt           time.Time
	CompletedAt         *time.Time
	UpdatedAt           time.Time
	Version             int
}

// NewScanSession returns a session in the initializing state.
func NewScanSession(id string, totalSteps, lowThreshold, highThreshold int, now time.Time) *ScanSession {
	return &ScanSession{
		ID:                  id,
		Status:              SessionInitializing,
		TotalSteps:          totalSteps,
		Errors:              FailureList{},
		StepErrors:          StepFailures{},
		ConfidenceThreshold: lowThreshold,
		HighThreshold:       highThreshold,
		StartedAt:           now,
		UpdatedAt:           now,
	}
}

// Elapsed returns the run time up to completion, or up to now for a live session.
func (s *ScanSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// Clone returns a deep copy safe to hand to observers.
func (s *ScanSession) Clone() *ScanSession {
	c := *s
	c.Errors = append(FailureList{}, s.Errors...)
	c.StepErrors = make(StepFailures, len(s.StepErrors))
	for k, v := range s.StepErrors {
		c.StepErrors[k] = append([]string(nil), v...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Summary != nil {
		sum := *s.Summary
		c.Summary = &sum
	}
	return &c
}
