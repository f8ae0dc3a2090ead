package repository

import (
	"context"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// ImageRepository stores image links and review candidates.
type ImageRepository interface {
	// HasActiveImage reports whether productID already has an active image link.
	HasActiveImage(ctx context.Context, productID string) (bool, error)

	SaveImageLink(ctx context.Context, link *model.ImageLink) error

	// SaveImageCandidate inserts candidate unless one already exists for the same product and
	// image URL; created is false in that case.
	SaveImageCandidate(ctx context.Context, candidate *model.ImageCandidate) (created bool, err error)

	// FindPendingCandidates returns pending candidates with confidence >= minConfidence,
	// highest confidence first.
	FindPendingCandidates(ctx context.Context, minConfidence int) ([]*model.ImageCandidate, error)

	// PromoteCandidate writes link and moves the candidate to the promoted state in one transaction.
	PromoteCandidate(ctx context.Context, candidate *model.ImageCandidate, link *model.ImageLink) error

	// RejectCandidate moves a pending candidate to the rejected state. A candidate that is no
	// longer pending yields an optimistic locking failure.
	RejectCandidate(ctx context.Context, candidate *model.ImageCandidate) error
}
