// Package notification publishes session progress events to observers.
package notification

import (
	"context"
	"fmt"
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// EventType classifies an Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventLog      EventType = "log"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// EventRestarted announces a rerun of a finished session; progress and counters of the new
// run start again from zero.
const EventRestarted EventType = "restarted"

// IsTerminal reports whether no further events follow for the session.
func (t EventType) IsTerminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one update about a running session.
type Event struct {
	Type      EventType           `json:"type"`
	SessionID string              `json:"session_id"`
	Status    model.SessionStatus `json:"status"`
	StepIndex int                 `json:"step_index"`
	StepName  string              `json:"step_name,omitempty"`
	Progress  float64             `json:"progress"`
	Counters  model.Counters      `json:"counters"`
	Message   string              `json:"message,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	Time      time.Time           `json:"time"`
}

// NewSessionEvent builds an event from the current session snapshot.
func NewSessionEvent(t EventType, s *model.ScanSession, message string) Event {
	return Event{
		Type:      t,
		SessionID: s.ID,
		Status:    s.Status,
		StepIndex: s.CurrentStepIndex,
		StepName:  s.StepName,
		Progress:  s.ProgressPercent,
		Counters:  s.Counters,
		Message:   message,
		StartedAt: s.StartedAt,
		Time:      time.Now().UTC(),
	}
}

// Notifier receives session events. Implementations must not block the pipeline.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the application log.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) {
	switch e.Type {
	case EventComplete:
		logger.Infof("Session %s complete: links=%d candidates=%d promoted=%d images=%d products=%d",
			e.SessionID, e.Counters.DirectLinksCreated, e.Counters.CandidatesCreated,
			e.Counters.CandidatesPromoted, e.Counters.ImagesScanned, e.Counters.ProductsScanned)
	case EventError:
		logger.Warnf("Session %s failed in step '%s': %s", e.SessionID, e.StepName, e.Message)
	case EventLog, EventRestarted:
		logger.Infof("[%s] %s", e.SessionID, e.Message)
	default:
		logger.Debugf("Session %s %s", e.SessionID, progressLine(e))
	}
}

func progressLine(e Event) string {
	return fmt.Sprintf("step %d (%s) %.1f%%", e.StepIndex, e.StepName, e.Progress)
}

// Multi fans events out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = Multi(nil)
)
