// Package usecase exposes the operations callers use to start, observe and cancel
// image linking sessions.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/engine/pipeline"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// Trigger modes.
const (
	ModeConsolidatedProcess = "consolidated_process"
	ModeCheckProgress       = "check_progress"
)

// StatusStarted is the status returned when a run was launched.
const StatusStarted = "started"

// ErrInvalidRequest marks a trigger request that failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// TriggerRequest is the body of a trigger call.
type TriggerRequest struct {
	Mode                string `json:"mode"`
	SessionID           string `json:"session_id,omitempty"`
	ConfidenceThreshold *int   `json:"confidence_threshold,omitempty"`
}

// TriggerResponse answers a trigger call. Progress is set for check_progress only.
type TriggerResponse struct {
	SessionID string        `json:"sessionId"`
	Status    string        `json:"status"`
	Progress  *ProgressView `json:"progress,omitempty"`
}

// TriggerService starts runs and reads or cancels sessions.
type TriggerService struct {
	launcher JobLauncher
	sessions repository.SessionRepository
	cfg      config.PipelineConfig
	now      func() time.Time
}

// NewTriggerService creates a TriggerService.
func NewTriggerService(launcher JobLauncher, sessions repository.SessionRepository, cfg *config.Config) *TriggerService {
	return &TriggerService{launcher: launcher, sessions: sessions, cfg: cfg.Linker.Pipeline, now: time.Now}
}

// Handle dispatches req by mode.
func (s *TriggerService) Handle(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	switch req.Mode {
	case ModeConsolidatedProcess:
		h, err := s.Start(ctx, req.SessionID, req.ConfidenceThreshold)
		if err != nil {
			return nil, err
		}
		return &TriggerResponse{SessionID: h.SessionID(), Status: StatusStarted}, nil
	case ModeCheckProgress:
		if req.SessionID == "" {
			return nil, fmt.Errorf("%w: session_id is required for %s", ErrInvalidRequest, ModeCheckProgress)
		}
		view, err := s.Progress(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		return &TriggerResponse{SessionID: view.SessionID, Status: string(view.Status), Progress: view}, nil
	case "":
		return nil, fmt.Errorf("%w: mode is required", ErrInvalidRequest)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}
}

// Start launches a run. An empty sessionID gets a new UUID; a given one is reused, which
// reruns a finished session. A session whose stored status is not terminal is refused.
// A nil threshold means the configured default. On success the session is already stored in
// the initializing state.
func (s *TriggerService) Start(ctx context.Context, sessionID string, threshold *int) (JobHandle, error) {
	low := s.cfg.ConfidenceThreshold
	if threshold != nil {
		low = *threshold
	}
	if low < 0 || low > 100 {
		return nil, fmt.Errorf("%w: confidence_threshold must be between 0 and 100, got %d", ErrInvalidRequest, low)
	}

	if sessionID == "" {
		sessionID = model.NewID()
	} else {
		existing, err := s.sessions.FindSessionByID(ctx, sessionID)
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
		case err != nil:
			return nil, err
		case !existing.Status.IsFinished():
			return nil, fmt.Errorf("session %s is %s: %w", sessionID, existing.Status, ErrSessionActive)
		}
	}

	h, err := s.launcher.Submit(ctx, pipeline.Request{SessionID: sessionID, ConfidenceThreshold: low})
	if err != nil {
		return nil, err
	}
	logger.Infof("Started image linking session %s (candidate threshold %d).", sessionID, low)
	return h, nil
}

// Progress returns the view of a stored session or repository.ErrSessionNotFound.
func (s *TriggerService) Progress(ctx context.Context, sessionID string) (*ProgressView, error) {
	session, err := s.sessions.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewProgressView(session, s.now().UTC()), nil
}

// Cancel marks a running session as cancelled; the run stops at its next checkpoint. It
// reports false when the session had already finished.
func (s *TriggerService) Cancel(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.sessions.MarkSessionError(ctx, sessionID, pipeline.CancelledMessage)
	if err != nil {
		return false, err
	}
	if ok {
		logger.Infof("Cancellation requested for session %s.", sessionID)
	} else {
		logger.Infof("Session %s already finished, nothing to cancel.", sessionID)
	}
	return ok, nil
}
