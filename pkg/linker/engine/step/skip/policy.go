// Package skip decides whether a per-item failure may be recorded and passed over.
package skip

import (
	"context"
	"errors"
	"sync"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// SkipPolicy decides whether an item error is skipped and counts the skips.
type SkipPolicy interface {
	// ShouldSkip reports whether err may be skipped under the policy, including the limit.
	ShouldSkip(err error) bool
	// CanSkip reports whether the limit still allows another skip.
	CanSkip() bool
	IncrementSkipCount()
	GetSkipCount() int
	// GetSkipLimit returns the configured limit; 0 means unlimited.
	GetSkipLimit() int
}

// DefaultSkipPolicyFactory creates skip policies.
type DefaultSkipPolicyFactory struct{}

// NewDefaultSkipPolicyFactory creates a new DefaultSkipPolicyFactory.
func NewDefaultSkipPolicyFactory() *DefaultSkipPolicyFactory {
	return &DefaultSkipPolicyFactory{}
}

// Create returns a policy allowing skipLimit skips (0 = unlimited). Errors flagged skippable
// and errors matching one of the registered names in skippableErrors are skipped.
func (f *DefaultSkipPolicyFactory) Create(skipLimit int, skippableErrors []string) SkipPolicy {
	if skipLimit < 0 {
		skipLimit = 0
	}
	return &defaultSkipPolicy{
		skipLimit:       skipLimit,
		skippableErrors: append([]string(nil), skippableErrors...),
	}
}

type defaultSkipPolicy struct {
	mu              sync.Mutex
	skipLimit       int
	skippableErrors []string
	skipCount       int
}

// ShouldSkip checks, in order: the skip limit, context cancellation (never skipped), the
// BatchError flag and finally the configured error names.
func (p *defaultSkipPolicy) ShouldSkip(err error) bool {
	if err == nil || !p.CanSkip() {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if exception.IsSkippable(err) {
		return true
	}
	for _, name := range p.skippableErrors {
		if exception.IsErrorOfType(err, name) {
			return true
		}
	}
	return false
}

func (p *defaultSkipPolicy) CanSkip() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipLimit == 0 || p.skipCount < p.skipLimit
}

func (p *defaultSkipPolicy) IncrementSkipCount() {
	p.mu.Lock()
	p.skipCount++
	p.mu.Unlock()
}

func (p *defaultSkipPolicy) GetSkipCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipCount
}

func (p *defaultSkipPolicy) GetSkipLimit() int {
	return p.skipLimit
}

var _ SkipPolicy = (*defaultSkipPolicy)(nil)
