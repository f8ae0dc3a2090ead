// Package exception defines the error type shared by the pipeline stages.
// A BatchError records which stage failed and whether the failure may be skipped
// (recorded against the session while the run continues) or retried.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// BatchError is an error raised by one pipeline stage.
type BatchError struct {
	// Module names the operation that failed (e.g. "SQLSessionRepository.Save", "writer").
	Module string
	// Message is a short human readable description.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	isRetryable bool
	isSkippable bool
	// StackTrace is captured at construction for debugging.
	StackTrace string
}

func stack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError creates a BatchError.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  stack(),
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
// Trailing optional arguments are consumed from the end in the order
// [originalErr error], [isRetryable bool], [isSkippable bool]; the rest feed fmt.Sprintf.
//
//	NewBatchErrorf("writer", "failed to link %s", name, true, false, err)
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	var isRetryable, isSkippable bool
	args := a

	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok {
			originalErr = err
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			isRetryable = b
			args = args[:n-1]
		}
	}
	if n := len(args); n > 0 {
		if b, ok := args[n-1].(bool); ok {
			isSkippable = b
			args = args[:n-1]
		}
	}

	return &BatchError{
		Module:      module,
		Message:     fmt.Sprintf(format, args...),
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  stack(),
	}
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *BatchError) Unwrap() error { return e.OriginalErr }

// IsRetryable reports whether the failed operation may be attempted again.
func (e *BatchError) IsRetryable() bool { return e.isRetryable }

// IsSkippable reports whether the failure affects a single item only.
func (e *BatchError) IsSkippable() bool { return e.isSkippable }

// AsBatchError finds the first BatchError in err's chain.
func AsBatchError(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsSkippable reports whether err is a skippable BatchError.
// Context cancellation is never skippable, even when wrapped in a skippable error.
func IsSkippable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return be.IsSkippable()
	}
	return false
}

// IsTemporary reports whether err looks transient (network blips, timeouts).
// A BatchError's retryable flag takes precedence over message inspection.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return be.IsRetryable()
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := AsBatchError(err); ok {
		return !be.IsRetryable() && !be.IsSkippable()
	}
	return true
}

// ExtractErrorMessage returns the BatchError message when available, err.Error() otherwise.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		if be.OriginalErr != nil {
			return fmt.Sprintf("%s: %v", be.Message, be.OriginalErr)
		}
		return be.Message
	}
	return err.Error()
}

// OptimisticLockingFailureException is the registry name of ErrOptimisticLockingFailure.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure signals that a versioned row changed underneath an update.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException wraps ErrOptimisticLockingFailure in a fatal BatchError.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	wrapped := ErrOptimisticLockingFailure
	if originalErr != nil {
		wrapped = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, message, wrapped, false, false)
}

// IsOptimisticLockingFailure reports whether err carries ErrOptimisticLockingFailure.
func IsOptimisticLockingFailure(err error) bool {
	return err != nil && errors.Is(err, ErrOptimisticLockingFailure)
}

var (
	registryMu    sync.RWMutex
	errorRegistry = map[string]error{}
)

// RegisterErrorType makes a sentinel error addressable by name from configuration
// (pipeline.skippable_errors). It panics on an empty name or nil prototype.
func RegisterErrorType(name string, prototype error) {
	if name == "" {
		panic("error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("cannot register nil prototype for name: %s", name))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether name was registered.
func IsErrorTypeRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// IsErrorOfType reports whether err matches the named registered sentinel, or
// whether any error in its chain contains name in its message.
func IsErrorOfType(err error, name string) bool {
	if err == nil {
		return false
	}
	registryMu.RLock()
	target, ok := errorRegistry[name]
	registryMu.RUnlock()
	if ok && errors.Is(err, target) {
		return true
	}
	for cur := err; cur != nil; cur = errors.Unwrap(cur) {
		if strings.Contains(cur.Error(), name) {
			return true
		}
	}
	return false
}

func init() {
	RegisterErrorType(OptimisticLockingFailureException, ErrOptimisticLockingFailure)
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}
