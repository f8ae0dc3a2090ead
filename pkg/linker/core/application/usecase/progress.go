package usecase

import (
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// ProgressView is the client-facing view of a ScanSession.
type ProgressView struct {
	SessionID           string                `json:"session_id"`
	Status              model.SessionStatus   `json:"status"`
	Progress            float64               `json:"progress"`
	CurrentStep         int                   `json:"current_step"`
	StepName            string                `json:"step_name"`
	CurrentBatch        int                   `json:"current_batch"`
	TotalBatches        int                   `json:"total_batches"`
	LinksCreated        int64                 `json:"links_created"`
	CandidatesCreated   int64                 `json:"candidates_created"`
	CandidatesPromoted  int64                 `json:"candidates_promoted"`
	ProductsScanned     int64                 `json:"products_scanned"`
	ImagesScanned       int64                 `json:"images_scanned"`
	Errors              []string              `json:"errors"`
	StepErrors          map[string][]string   `json:"step_errors,omitempty"`
	TimeElapsedSeconds  float64               `json:"time_elapsed_seconds"`
	ConfidenceThreshold int                   `json:"confidence_threshold"`
	HighThreshold       int                   `json:"high_threshold"`
	StartedAt           time.Time             `json:"started_at"`
	CompletedAt         *time.Time            `json:"completed_at,omitempty"`
	Summary             *model.SessionSummary `json:"summary,omitempty"`
}

// NewProgressView builds the view of s. The current batch is the 1-based step number; the
// elapsed time of a live session is measured up to now.
func NewProgressView(s *model.ScanSession, now time.Time) *ProgressView {
	batch := s.CurrentStepIndex + 1
	if s.Status == model.SessionInitializing {
		batch = 0
	}
	if batch > s.TotalSteps {
		batch = s.TotalSteps
	}
	errs := []string(s.Errors)
	if errs == nil {
		errs = []string{}
	}
	return &ProgressView{
		SessionID:           s.ID,
		Status:              s.Status,
		Progress:            s.ProgressPercent,
		CurrentStep:         s.CurrentStepIndex,
		StepName:            s.StepName,
		CurrentBatch:        batch,
		TotalBatches:        s.TotalSteps,
		LinksCreated:        s.Counters.DirectLinksCreated,
		CandidatesCreated:   s.Counters.CandidatesCreated,
		CandidatesPromoted:  s.Counters.CandidatesPromoted,
		ProductsScanned:     s.Counters.ProductsScanned,
		ImagesScanned:       s.Counters.ImagesScanned,
		Errors:              errs,
		StepErrors:          s.StepErrors,
		TimeElapsedSeconds:  s.Elapsed(now).Seconds(),
		ConfidenceThreshold: s.ConfidenceThreshold,
		HighThreshold:       s.HighThreshold,
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
		Summary:             s.Summary,
	}
}
