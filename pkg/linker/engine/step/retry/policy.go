// Package retry re-runs operations that failed with a transient error.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// MaxBackoff caps the interval between two attempts.
const MaxBackoff = 10 * time.Second

// RetryPolicy decides whether and when a failed operation is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error) bool
	// Backoff returns the wait before attempt+1, attempt starting at 1.
	Backoff(attempt int) time.Duration
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts() int
}

// DefaultRetryPolicyFactory creates retry policies.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create returns a policy doubling initialInterval after each attempt. A maxAttempts below 2
// disables retries.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval time.Duration, retryableErrors []string) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: initialInterval,
		retryableErrors: append([]string(nil), retryableErrors...),
	}
}

type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
	retryableErrors []string
}

func (p *defaultRetryPolicy) MaxAttempts() int { return p.maxAttempts }

// ShouldRetry never retries a cancelled context. Otherwise a BatchError decides by its
// retryable flag; plain errors are retried when they look transient or match a configured name.
func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, name := range p.retryableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	if be, ok := exception.AsBatchError(err); ok {
		if be.IsRetryable() {
			return true
		}
		if be.OriginalErr == nil {
			return false
		}
		err = be.OriginalErr
	}
	return exception.IsTemporary(err)
}

func (p *defaultRetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.initialInterval
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// Do calls fn until it succeeds, the policy gives up or ctx ends. It returns the result and
// error of the last call, or ctx.Err() when ctx ended during a backoff.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 1; ; attempt++ {
		v, err = fn(ctx)
		if err == nil || attempt >= p.MaxAttempts() || !p.ShouldRetry(err) {
			return v, err
		}
		wait := p.Backoff(attempt)
		logger.Debugf("Attempt %d/%d failed, retrying in %s: %v", attempt, p.MaxAttempts(), wait, err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return v, ctx.Err()
		case <-t.C:
		}
	}
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
