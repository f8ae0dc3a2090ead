package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// SQLImageRepository stores image links and review candidates. Write failures are reported as
// skippable so a single bad item does not stop a run.
type SQLImageRepository struct {
	connectionSource
	txManager database.TransactionManager
	now       func() time.Time
}

// NewSQLImageRepository creates the repository on the named connection.
func NewSQLImageRepository(dbResolver database.DBConnectionResolver, txManager database.TransactionManager, dbName string) *SQLImageRepository {
	return &SQLImageRepository{
		connectionSource: connectionSource{dbResolver: dbResolver, dbName: dbName, module: "SQLImageRepository"},
		txManager:        txManager,
		now:              time.Now,
	}
}

func (r *SQLImageRepository) HasActiveImage(ctx context.Context, productID string) (bool, error) {
	const op = "SQLImageRepository.HasActiveImage"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return false, err
	}
	n, err := executor.Count(ctx, &ImageLinkEntity{}, map[string]interface{}{"product_id": productID, "is_active": true})
	if err != nil {
		return false, exception.NewBatchError(op, fmt.Sprintf("failed to check images of product %s", productID), err, true, true)
	}
	return n > 0, nil
}

func (r *SQLImageRepository) SaveImageLink(ctx context.Context, link *model.ImageLink) error {
	const op = "SQLImageRepository.SaveImageLink"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainImageLink(link)
	if _, err := executor.ExecuteUpdate(ctx, entity, database.OpCreate, entity.TableName(), nil); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to save image link for product %s", link.ProductID), err, true, false)
	}
	return nil
}

func (r *SQLImageRepository) SaveImageCandidate(ctx context.Context, candidate *model.ImageCandidate) (bool, error) {
	const op = "SQLImageRepository.SaveImageCandidate"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return false, err
	}
	entity := fromDomainImageCandidate(candidate)
	n, err := executor.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"product_id", "image_url"}, nil)
	if err != nil {
		return false, exception.NewBatchError(op, fmt.Sprintf("failed to save image candidate for product %s", candidate.ProductID), err, true, false)
	}
	return n > 0, nil
}

func (r *SQLImageRepository) FindPendingCandidates(ctx context.Context, minConfidence int) ([]*model.ImageCandidate, error) {
	const op = "SQLImageRepository.FindPendingCandidates"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []ImageCandidateEntity
	err = conn.ExecuteQueryWhere(ctx, &entities, "status = ? AND match_confidence >= ?",
		[]interface{}{string(model.CandidatePending), minConfidence}, "match_confidence desc, created_at, id")
	if err != nil {
		return nil, exception.NewBatchError(op, "failed to read pending candidates", err, false, false)
	}

	out := make([]*model.ImageCandidate, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainImageCandidate(&entities[i]))
	}
	return out, nil
}

// PromoteCandidate inserts link and marks the candidate promoted in one transaction. The
// status update is guarded on the pending state, so a candidate promoted concurrently yields
// an optimistic locking failure and no link.
func (r *SQLImageRepository) PromoteCandidate(ctx context.Context, candidate *model.ImageCandidate, link *model.ImageLink) error {
	const op = "SQLImageRepository.PromoteCandidate"
	reviewedAt := r.now().UTC()

	err := database.RunInTx(ctx, r.txManager, func(txCtx context.Context) error {
		executor, err := r.getTxExecutor(txCtx)
		if err != nil {
			return err
		}

		linkEntity := fromDomainImageLink(link)
		if _, err := executor.ExecuteUpdate(txCtx, linkEntity, database.OpCreate, linkEntity.TableName(), nil); err != nil {
			return err
		}

		promoted := *candidate
		promoted.Status = model.CandidatePromoted
		promoted.ReviewedAt = &reviewedAt
		candEntity := fromDomainImageCandidate(&promoted)
		n, err := executor.ExecuteUpdate(txCtx, candEntity, database.OpUpdate, candEntity.TableName(),
			map[string]interface{}{"status": string(model.CandidatePending)})
		if err != nil {
			return err
		}
		if n == 0 {
			return exception.NewOptimisticLockingFailureException(op,
				fmt.Sprintf("candidate %s is no longer pending", candidate.ID), nil)
		}
		return nil
	})
	if err != nil {
		if exception.IsOptimisticLockingFailure(err) {
			return err
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to promote candidate %s", candidate.ID), err, true, false)
	}

	candidate.Status = model.CandidatePromoted
	candidate.ReviewedAt = &reviewedAt
	return nil
}

func (r *SQLImageRepository) RejectCandidate(ctx context.Context, candidate *model.ImageCandidate) error {
	const op = "SQLImageRepository.RejectCandidate"
	executor, err := r.getTxExecutor(ctx)
	if err != nil {
		return err
	}
	reviewedAt := r.now().UTC()
	rejected := *candidate
	rejected.Status = model.CandidateRejected
	rejected.ReviewedAt = &reviewedAt
	entity := fromDomainImageCandidate(&rejected)
	n, err := executor.ExecuteUpdate(ctx, entity, database.OpUpdate, entity.TableName(),
		map[string]interface{}{"status": string(model.CandidatePending)})
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to reject candidate %s", candidate.ID), err, true, false)
	}
	if n == 0 {
		return exception.NewOptimisticLockingFailureException(op, fmt.Sprintf("candidate %s is no longer pending", candidate.ID), nil)
	}
	candidate.Status = model.CandidateRejected
	candidate.ReviewedAt = &reviewedAt
	return nil
}

var _ repository.ImageRepository = (*SQLImageRepository)(nil)
