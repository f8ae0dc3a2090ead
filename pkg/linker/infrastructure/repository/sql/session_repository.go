package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// SQLSessionRepository persists scan session snapshots with optimistic locking on Version.
type SQLSessionRepository struct {
	connectionSource
	now func() time.Time
}

// NewSQLSessionRepository creates the repository on the named connection.
func NewSQLSessionRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLSessionRepository {
	return &SQLSessionRepository{
		connectionSource: connectionSource{dbResolver: dbResolver, dbName: dbName, module: "SQLSessionRepository"},
		now:              time.Now,
	}
}

func (r *SQLSessionRepository) SaveSession(ctx context.Context, session *model.ScanSession) error {
	const op = "SQLSessionRepository.SaveSession"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainScanSession(session)
	if _, err := executor.ExecuteUpdate(ctx, entity, database.OpCreate, entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save ScanSession (ID: %s)", session.ID), err, false, true)
	}
	return nil
}

func (r *SQLSessionRepository) UpdateSession(ctx context.Context, session *model.ScanSession) error {
	const op = "SQLSessionRepository.UpdateSession"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}

	originalVersion := session.Version
	session.Version++
	entity := fromDomainScanSession(session)

	rowsAffected, err := executor.ExecuteUpdate(ctx, entity, database.OpUpdate, entity.TableName(),
		map[string]interface{}{"version": originalVersion})
	if err != nil {
		session.Version = originalVersion
		return exception.NewBatchError(op, fmt.Sprintf("failed to update ScanSession (ID: %s)", session.ID), err, false, true)
	}
	if rowsAffected == 0 {
		session.Version = originalVersion
		return exception.NewOptimisticLockingFailureException(op,
			fmt.Sprintf("ScanSession (ID: %s) with version %d not found for update", session.ID, originalVersion), nil)
	}
	return nil
}

func (r *SQLSessionRepository) FindSessionByID(ctx context.Context, id string) (*model.ScanSession, error) {
	const op = "SQLSessionRepository.FindSessionByID"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []ScanSessionEntity
	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"id": id}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find ScanSession by ID: %s", id), err, false, true)
	}
	if len(entities) == 0 {
		return nil, repository.ErrSessionNotFound
	}
	return toDomainScanSession(&entities[0]), nil
}

// MarkSessionError reloads the session and retries on a version conflict, so a cancel
// request racing with the running pipeline still lands.
func (r *SQLSessionRepository) MarkSessionError(ctx context.Context, id string, message string) (bool, error) {
	const maxAttempts = 3
	for attempt := 1; ; attempt++ {
		session, err := r.FindSessionByID(ctx, id)
		if err != nil {
			return false, err
		}
		if session.Status.IsFinished() {
			return false, nil
		}

		now := r.now().UTC()
		session.Status = model.SessionError
		session.Errors = append(session.Errors, message)
		session.CompletedAt = &now
		session.UpdatedAt = now

		err = r.UpdateSession(ctx, session)
		if err == nil {
			return true, nil
		}
		if !exception.IsOptimisticLockingFailure(err) || attempt == maxAttempts {
			return false, err
		}
		logger.Debugf("MarkSessionError: version conflict on session %s, retrying (%d/%d).", id, attempt, maxAttempts)
	}
}

var _ repository.SessionRepository = (*SQLSessionRepository)(nil)
