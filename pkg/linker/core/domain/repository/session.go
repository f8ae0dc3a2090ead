package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// ErrSessionNotFound is returned when no session exists for an id.
var ErrSessionNotFound = errors.New("scan session not found")

func init() {
	exception.RegisterErrorType("ErrSessionNotFound", ErrSessionNotFound)
}

// SessionRepository persists ScanSession snapshots.
type SessionRepository interface {
	// SaveSession inserts a new session. It fails if the id already exists.
	SaveSession(ctx context.Context, session *model.ScanSession) error

	// UpdateSession writes the full snapshot guarded by the session version. On success the
	// version is incremented; a concurrent change yields an optimistic locking failure.
	UpdateSession(ctx context.Context, session *model.ScanSession) error

	// FindSessionByID returns ErrSessionNotFound when the id is unknown.
	FindSessionByID(ctx context.Context, id string) (*model.ScanSession, error)

	// MarkSessionError forces a non-terminal session into the error state with message.
	// It is the out-of-band cancellation path and returns false if the session had already finished.
	MarkSessionError(ctx context.Context, id string, message string) (bool, error)
}
