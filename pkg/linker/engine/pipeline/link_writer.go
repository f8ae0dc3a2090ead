package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/core/match"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// Outcome is what the writer did with one match.
type Outcome string

const (
	OutcomeLink      Outcome = "link"
	OutcomeCandidate Outcome = "candidate"
	OutcomeSkipped   Outcome = "skipped"
)

// Skip reasons reported in WriteResult.Reason.
const (
	ReasonHasActiveImage  = "has_active_image"
	ReasonBelowThreshold  = "below_threshold"
	ReasonCandidateExists = "candidate_exists"
	ReasonError           = "error"
)

// WriteResult is the result of applying one match. Err is set for a failed item; Outcome is
// then OutcomeSkipped with ReasonError.
type WriteResult struct {
	Outcome  Outcome
	Reason   string
	ImageURL string
	Err      error
}

// Thresholds decide between a confirmed link and a review candidate.
type Thresholds struct {
	// High is the minimum confidence for an auto-confirmed link.
	High int
	// Low is the minimum confidence for a review candidate.
	Low int
}

// LinkWriter turns matches into image links or review candidates for one run. Products
// linked during the run are remembered so a second image never becomes another primary.
type LinkWriter struct {
	images     repository.ImageRepository
	urls       storage.URLResolver
	bucket     string
	thresholds Thresholds
	now        func() time.Time

	mu     sync.Mutex
	linked map[string]struct{}
}

// NewLinkWriter creates a writer. withImages seeds the set of products that already have an
// active image, usually CatalogSnapshot.ProductsWithImages.
func NewLinkWriter(images repository.ImageRepository, urls storage.URLResolver, bucket string, thresholds Thresholds, withImages map[string]struct{}) *LinkWriter {
	linked := make(map[string]struct{}, len(withImages))
	for id := range withImages {
		linked[id] = struct{}{}
	}
	return &LinkWriter{
		images:     images,
		urls:       urls,
		bucket:     bucket,
		thresholds: thresholds,
		now:        time.Now,
		linked:     linked,
	}
}

// Apply writes r. Products with an active image, in the snapshot or in the store, are
// skipped. Confidence >= High links, >= Low creates a pending candidate, anything lower is
// skipped.
func (w *LinkWriter) Apply(ctx context.Context, sessionID string, r match.Result) WriteResult {
	const op = "LinkWriter.Apply"
	productID := r.Product.ID

	if w.hasLink(productID) {
		return WriteResult{Outcome: OutcomeSkipped, Reason: ReasonHasActiveImage}
	}
	if r.Confidence < w.thresholds.Low && r.Confidence < w.thresholds.High {
		return WriteResult{Outcome: OutcomeSkipped, Reason: ReasonBelowThreshold}
	}

	has, err := w.images.HasActiveImage(ctx, productID)
	if err != nil {
		return failed(op, r, err)
	}
	if has {
		w.markLinked(productID)
		return WriteResult{Outcome: OutcomeSkipped, Reason: ReasonHasActiveImage}
	}

	url := w.urls.PublicURL(w.bucket, r.Image.Name)
	meta := model.MatchMetadata{
		Filename:         r.Image.BaseName(),
		ExtractionSource: r.Source.String(),
		SessionID:        sessionID,
		SKU:              r.SKU,
		AlternateSKUs:    r.AlternateSKUs,
	}
	now := w.now().UTC()

	if r.Confidence >= w.thresholds.High {
		link := model.NewPrimaryLink(productID, url, r.Product.Name, r.Confidence, meta, now)
		if err := w.images.SaveImageLink(ctx, link); err != nil {
			return failed(op, r, err)
		}
		w.markLinked(productID)
		return WriteResult{Outcome: OutcomeLink, ImageURL: url}
	}

	candidate := &model.ImageCandidate{
		ID:              model.NewID(),
		ProductID:       productID,
		ImageURL:        url,
		AltText:         r.Product.Name,
		MatchConfidence: r.Confidence,
		MatchMetadata:   meta,
		Status:          model.CandidatePending,
		CreatedAt:       now,
	}
	created, err := w.images.SaveImageCandidate(ctx, candidate)
	if err != nil {
		return failed(op, r, err)
	}
	if !created {
		return WriteResult{Outcome: OutcomeSkipped, Reason: ReasonCandidateExists, ImageURL: url}
	}
	return WriteResult{Outcome: OutcomeCandidate, ImageURL: url}
}

func (w *LinkWriter) hasLink(productID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.linked[productID]
	return ok
}

func (w *LinkWriter) markLinked(productID string) {
	w.mu.Lock()
	w.linked[productID] = struct{}{}
	w.mu.Unlock()
}

// failed wraps a per-item error. Repository errors keep their own classification; anything
// else is treated as skippable.
func failed(op string, r match.Result, err error) WriteResult {
	if _, ok := exception.AsBatchError(err); !ok {
		err = exception.NewBatchError(op, fmt.Sprintf("failed to write match %s -> %s", r.Image.Name, r.Product.ID), err, true, false)
	}
	return WriteResult{Outcome: OutcomeSkipped, Reason: ReasonError, Err: err}
}
