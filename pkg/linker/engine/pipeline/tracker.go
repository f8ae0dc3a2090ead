package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// CancelledMessage is the error recorded on a session stopped on request.
const CancelledMessage = "cancelled"

// ErrCancelled is returned once the tracker notices that its session was stopped out of band.
var ErrCancelled = errors.New("scan session cancelled")

func init() {
	exception.RegisterErrorType("ErrCancelled", ErrCancelled)
}

// Tracker owns the ScanSession of one run. Every change goes through it; it persists the
// snapshot with the repository's version check and publishes an event per change.
//
// A version conflict means someone else wrote the session, which only happens on
// cancellation, so a conflict that reveals the error status turns into ErrCancelled.
type Tracker struct {
	repo          repository.SessionRepository
	notifier      notification.Notifier
	progressEvery int
	now           func() time.Time

	mu        sync.Mutex
	session   *model.ScanSession
	cancelled bool
	lastSaved int
}

// NewTracker creates a tracker. progressEvery throttles ItemProgress writes.
func NewTracker(repo repository.SessionRepository, notifier notification.Notifier, progressEvery int) *Tracker {
	if progressEvery <= 0 {
		progressEvery = 1
	}
	if notifier == nil {
		notifier = notification.Multi(nil)
	}
	return &Tracker{repo: repo, notifier: notifier, progressEvery: progressEvery, now: time.Now}
}

// Start creates the session in the initializing state. An existing session with the same id
// is reset, which is how a finished session is rerun: the rerun is a new run of the session
// with its own StartedAt, and it is announced with EventRestarted before progress and
// counters start again from zero.
func (t *Tracker) Start(ctx context.Context, sessionID string, totalSteps, lowThreshold, highThreshold int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := model.NewScanSession(sessionID, totalSteps, lowThreshold, highThreshold, t.now().UTC())
	event, message := notification.EventProgress, "session initialized"

	existing, err := t.repo.FindSessionByID(ctx, sessionID)
	switch {
	case errors.Is(err, repository.ErrSessionNotFound):
		if err := t.repo.SaveSession(ctx, s); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		logger.Infof("Resetting existing session %s (previous status: %s).", sessionID, existing.Status)
		s.Version = existing.Version
		if err := t.repo.UpdateSession(ctx, s); err != nil {
			return err
		}
		event = notification.EventRestarted
		message = fmt.Sprintf("session restarted (previous run %s, started %s)", existing.Status, existing.StartedAt.Format(time.RFC3339))
	}

	t.session = s
	t.cancelled = false
	t.lastSaved = 0
	t.publish(ctx, event, message)
	return nil
}

// Resume adopts the initializing session persisted by an earlier Start, typically from
// another Tracker before the run was handed to a background worker. A session cancelled in
// the meantime is adopted as cancelled and ErrCancelled is returned.
func (t *Tracker) Resume(ctx context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	persisted, err := t.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	t.session = persisted
	t.lastSaved = 0
	switch persisted.Status {
	case model.SessionInitializing:
		t.cancelled = false
		return nil
	case model.SessionError:
		t.cancelled = true
		return ErrCancelled
	default:
		t.session = nil
		return fmt.Errorf("session %s is %s, expected %s", sessionID, persisted.Status, model.SessionInitializing)
	}
}

// Begin moves the session to running.
func (t *Tracker) Begin(ctx context.Context) error {
	return t.mutate(ctx, notification.EventProgress, "", func(s *model.ScanSession) {
		s.Status = model.SessionRunning
	})
}

// Advance records the start of step stepIndex.
func (t *Tracker) Advance(ctx context.Context, stepIndex int, stepName string) error {
	return t.mutate(ctx, notification.EventProgress, "", func(s *model.ScanSession) {
		s.CurrentStepIndex = stepIndex
		s.StepName = stepName
		t.lastSaved = 0
		t.raiseProgress(s, stepIndex, 0)
	})
}

// UpdateProgress records pct (0 to 100) of step stepIndex. Overall progress never decreases.
func (t *Tracker) UpdateProgress(ctx context.Context, stepIndex int, pct float64) error {
	return t.mutate(ctx, notification.EventProgress, "", func(s *model.ScanSession) {
		t.raiseProgress(s, stepIndex, pct)
	})
}

// ItemProgress adds delta to the counters and records done of total items of step stepIndex.
// The snapshot is persisted every progressEvery items and on the last item; in between only
// the in-memory state moves.
func (t *Tracker) ItemProgress(ctx context.Context, stepIndex, done, total int, delta model.Counters) error {
	t.mu.Lock()
	if t.session == nil {
		t.mu.Unlock()
		return errNotStarted
	}
	t.session.Counters.Add(delta)
	pct := 100.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	t.raiseProgress(t.session, stepIndex, pct)
	due := done >= total || done-t.lastSaved >= t.progressEvery
	t.mu.Unlock()

	if !due {
		return nil
	}
	return t.mutate(ctx, notification.EventProgress, "", func(*model.ScanSession) {
		t.lastSaved = done
	})
}

// AddCounters accumulates delta and persists. Negative components are ignored.
func (t *Tracker) AddCounters(ctx context.Context, delta model.Counters) error {
	return t.mutate(ctx, notification.EventProgress, "", func(s *model.ScanSession) {
		s.Counters.Add(delta)
	})
}

// AppendError records msg in the global error list and under step.
func (t *Tracker) AppendError(ctx context.Context, step, msg string) error {
	return t.mutate(ctx, notification.EventLog, fmt.Sprintf("%s: %s", step, msg), func(s *model.ScanSession) {
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", step, msg))
		s.StepErrors[step] = append(s.StepErrors[step], msg)
	})
}

// Log publishes an informational message without changing the session.
func (t *Tracker) Log(ctx context.Context, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		t.publish(ctx, notification.EventLog, msg)
	}
}

// Complete finishes the session successfully.
func (t *Tracker) Complete(ctx context.Context, summary *model.SessionSummary) error {
	return t.mutate(ctx, notification.EventComplete, "", func(s *model.ScanSession) {
		now := t.now().UTC()
		s.Status = model.SessionComplete
		s.ProgressPercent = 100
		s.CompletedAt = &now
		s.Summary = summary
	})
}

// Fail finishes the session with cause. On a session already cancelled out of band only
// the event is published.
func (t *Tracker) Fail(ctx context.Context, cause error) error {
	msg := exception.ExtractErrorMessage(cause)
	t.mu.Lock()
	if t.cancelled {
		t.publish(ctx, notification.EventError, CancelledMessage)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	err := t.mutate(ctx, notification.EventError, msg, func(s *model.ScanSession) {
		now := t.now().UTC()
		s.Status = model.SessionError
		s.Errors = append(s.Errors, msg)
		s.CompletedAt = &now
	})
	if errors.Is(err, ErrCancelled) {
		t.mu.Lock()
		t.publish(ctx, notification.EventError, CancelledMessage)
		t.mu.Unlock()
		return nil
	}
	return err
}

// IsCancelled re-reads the persisted status. A session moved to error by someone else has
// been cancelled; the tracker adopts that snapshot and stops writing.
func (t *Tracker) IsCancelled(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return false, errNotStarted
	}
	if t.cancelled {
		return true, nil
	}
	persisted, err := t.repo.FindSessionByID(ctx, t.session.ID)
	if err != nil {
		return false, err
	}
	if persisted.Status == model.SessionError && t.session.Status != model.SessionError {
		t.adoptCancelled(persisted)
		return true, nil
	}
	return false, nil
}

// Snapshot returns a copy of the current session, or nil before Start.
func (t *Tracker) Snapshot() *model.ScanSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	return t.session.Clone()
}

var errNotStarted = errors.New("tracker: session not started")

// mutate applies fn, persists the snapshot and publishes an event.
func (t *Tracker) mutate(ctx context.Context, eventType notification.EventType, message string, fn func(*model.ScanSession)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return errNotStarted
	}
	if t.cancelled {
		return ErrCancelled
	}

	fn(t.session)
	t.session.UpdatedAt = t.now().UTC()
	if err := t.persist(ctx); err != nil {
		return err
	}
	t.publish(ctx, eventType, message)
	return nil
}

// persist writes the snapshot. On a version conflict the stored row is reloaded: an error
// status means cancellation, anything else is retried once on the fresh version.
func (t *Tracker) persist(ctx context.Context) error {
	err := t.repo.UpdateSession(ctx, t.session)
	if err == nil || !exception.IsOptimisticLockingFailure(err) {
		return err
	}

	persisted, findErr := t.repo.FindSessionByID(ctx, t.session.ID)
	if findErr != nil {
		return err
	}
	if persisted.Status == model.SessionError {
		t.adoptCancelled(persisted)
		return ErrCancelled
	}
	logger.Warnf("Session %s changed underneath the tracker (version %d -> %d), overwriting.", t.session.ID, t.session.Version, persisted.Version)
	t.session.Version = persisted.Version
	return t.repo.UpdateSession(ctx, t.session)
}

// adoptCancelled keeps local counters and progress, which are never behind the stored ones,
// and takes the stored status, errors and version.
func (t *Tracker) adoptCancelled(persisted *model.ScanSession) {
	t.cancelled = true
	t.session.Status = persisted.Status
	t.session.Errors = persisted.Errors
	t.session.CompletedAt = persisted.CompletedAt
	t.session.Version = persisted.Version
	logger.Infof("Session %s was cancelled.", t.session.ID)
}

// raiseProgress sets overall progress to (stepIndex + pct/100) / TotalSteps, never lowering it.
func (t *Tracker) raiseProgress(s *model.ScanSession, stepIndex int, pct float64) {
	if s.TotalSteps <= 0 {
		return
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	overall := (float64(stepIndex) + pct/100) / float64(s.TotalSteps) * 100
	if overall > 100 {
		overall = 100
	}
	if overall > s.ProgressPercent {
		s.ProgressPercent = overall
	}
}

// publish must be called with mu held.
func (t *Tracker) publish(ctx context.Context, eventType notification.EventType, message string) {
	t.notifier.Notify(ctx, notification.NewSessionEvent(eventType, t.session, message))
}
