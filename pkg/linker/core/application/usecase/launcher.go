package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tigerroll/imagelink/pkg/linker/engine/pipeline"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ErrSessionActive is returned when a session id is submitted while a run for it is still going.
var ErrSessionActive = errors.New("scan session is already running")

func init() {
	exception.RegisterErrorType("ErrSessionActive", ErrSessionActive)
}

// Runner executes one pipeline run. *pipeline.Orchestrator implements it.
type Runner interface {
	// Prepare persists the session of req before the run is handed off, so callers can poll
	// or cancel it as soon as Submit returns.
	Prepare(ctx context.Context, req pipeline.Request) (pipeline.Request, error)
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Summary, error)
}

// JobHandle follows a submitted run.
type JobHandle interface {
	SessionID() string
	// Done is closed when the run has finished.
	Done() <-chan struct{}
	// Wait blocks until the run finishes or ctx is done.
	Wait(ctx context.Context) (*pipeline.Summary, error)
	// Cancel interrupts the run through its context.
	Cancel()
}

// JobLauncher starts pipeline runs.
type JobLauncher interface {
	// Submit starts a run for req.SessionID. When it returns without error the session is
	// already persisted. The error reports a launch failure only; the outcome of the run is
	// available from the handle.
	Submit(ctx context.Context, req pipeline.Request) (JobHandle, error)
}

type jobHandle struct {
	sessionID string
	done      chan struct{}
	cancel    context.CancelFunc

	summary *pipeline.Summary
	err     error
}

func newJobHandle(sessionID string, cancel context.CancelFunc) *jobHandle {
	return &jobHandle{sessionID: sessionID, done: make(chan struct{}), cancel: cancel}
}

func (h *jobHandle) SessionID() string { return h.sessionID }

func (h *jobHandle) Done() <-chan struct{} { return h.done }

func (h *jobHandle) Wait(ctx context.Context) (*pipeline.Summary, error) {
	select {
	case <-h.done:
		return h.summary, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *jobHandle) Cancel() { h.cancel() }

func (h *jobHandle) finish(summary *pipeline.Summary, err error) {
	h.summary = summary
	h.err = err
	close(h.done)
}

// SimpleJobLauncher runs each session in its own goroutine. The run is detached from the
// submitting request; it ends on completion, on failure, or through Cancel or Shutdown.
type SimpleJobLauncher struct {
	runner Runner

	mu     sync.Mutex
	active map[string]*jobHandle
	wg     sync.WaitGroup
	closed bool
}

// NewSimpleJobLauncher creates a SimpleJobLauncher.
func NewSimpleJobLauncher(runner Runner) *SimpleJobLauncher {
	return &SimpleJobLauncher{runner: runner, active: make(map[string]*jobHandle)}
}

func (l *SimpleJobLauncher) Submit(ctx context.Context, req pipeline.Request) (JobHandle, error) {
	const op = "SimpleJobLauncher.Submit"

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, exception.NewBatchError(op, "launcher is shut down", nil, false, false)
	}
	if _, ok := l.active[req.SessionID]; ok {
		return nil, fmt.Errorf("%s: session %s: %w", op, req.SessionID, ErrSessionActive)
	}
	req, err := l.runner.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newJobHandle(req.SessionID, cancel)
	l.active[req.SessionID] = h
	l.wg.Add(1)
	logger.Debugf("Registered run for session %s.", req.SessionID)

	go func() {
		defer l.wg.Done()
		defer cancel()
		summary, err := l.runner.Run(jobCtx, req)
		if err != nil {
			logger.Warnf("Run for session %s ended with error: %v", req.SessionID, err)
		}
		l.unregister(req.SessionID, h)
		h.finish(summary, err)
	}()
	return h, nil
}

// Active reports whether a run for sessionID is in progress.
func (l *SimpleJobLauncher) Active(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[sessionID]
	return ok
}

// Handle returns the handle of the active run for sessionID.
func (l *SimpleJobLauncher) Handle(sessionID string) (JobHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.active[sessionID]
	if !ok {
		return nil, false
	}
	return h, true
}

// Shutdown refuses new submissions, cancels every active run and waits for them to return
// or for ctx to end.
func (l *SimpleJobLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	for id, h := range l.active {
		logger.Infof("Cancelling run for session %s.", id)
		h.cancel()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active runs: %w", ctx.Err())
	}
}

func (l *SimpleJobLauncher) unregister(sessionID string, h *jobHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[sessionID] == h {
		delete(l.active, sessionID)
		logger.Debugf("Unregistered run for session %s.", sessionID)
	}
}

// InlineLauncher runs the job in the calling goroutine; Submit returns a finished handle.
type InlineLauncher struct {
	runner Runner
}

// NewInlineLauncher creates an InlineLauncher.
func NewInlineLauncher(runner Runner) *InlineLauncher {
	return &InlineLauncher{runner: runner}
}

func (l *InlineLauncher) Submit(ctx context.Context, req pipeline.Request) (JobHandle, error) {
	req, err := l.runner.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	h := newJobHandle(req.SessionID, cancel)
	summary, err := l.runner.Run(runCtx, req)
	h.finish(summary, err)
	return h, nil
}

var (
	_ JobLauncher = (*SimpleJobLauncher)(nil)
	_ JobLauncher = (*InlineLauncher)(nil)
	_ Runner      = (*pipeline.Orchestrator)(nil)
)
