package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/core/extract"
	"github.com/tigerroll/imagelink/pkg/linker/core/match"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

func result(productID, image string, confidence int) match.Result {
	return match.Result{
		Image:      model.StorageObject{Name: image},
		Product:    product(productID, productID),
		Confidence: confidence,
		Source:     extract.SourceExactNumeric,
		SKU:        productID,
	}
}

func TestLinkWriter_Thresholds(t *testing.T) {
	ctx := context.Background()
	images := newMemImageRepo()
	w := NewLinkWriter(images, newFakeStorage(), "bucket", Thresholds{High: 85, Low: 70}, nil)

	got := w.Apply(ctx, "s1", result("p1", "products/p1.jpg", 90))
	assert.Equal(t, OutcomeLink, got.Outcome)
	assert.Equal(t, "https://cdn.example.com/bucket/products/p1.jpg", got.ImageURL)
	require.Len(t, images.links, 1)
	link := images.links[0]
	assert.True(t, link.AutoMatched)
	assert.True(t, link.IsPrimary)
	assert.True(t, link.IsActive)
	assert.Equal(t, 1, link.SortOrder)
	assert.Equal(t, 90, link.MatchConfidence)
	assert.Equal(t, "p1.jpg", link.MatchMetadata.Filename)
	assert.Equal(t, "exact_numeric_filename", link.MatchMetadata.ExtractionSource)
	assert.Equal(t, "s1", link.MatchMetadata.SessionID)

	got = w.Apply(ctx, "s1", result("p2", "p2.jpg", 75))
	assert.Equal(t, OutcomeCandidate, got.Outcome)
	require.Len(t, images.candidates, 1)
	assert.Equal(t, model.CandidatePending, images.candidates[0].Status)
	assert.Equal(t, 75, images.candidates[0].MatchConfidence)

	got = w.Apply(ctx, "s1", result("p3", "p3.jpg", 50))
	assert.Equal(t, OutcomeSkipped, got.Outcome)
	assert.Equal(t, ReasonBelowThreshold, got.Reason)

	// Exactly on a threshold counts.
	assert.Equal(t, OutcomeLink, w.Apply(ctx, "s1", result("p4", "p4.jpg", 85)).Outcome)
	assert.Equal(t, OutcomeCandidate, w.Apply(ctx, "s1", result("p5", "p5.jpg", 70)).Outcome)
}

func TestLinkWriter_LowThresholdAboveHigh(t *testing.T) {
	w := NewLinkWriter(newMemImageRepo(), newFakeStorage(), "b", Thresholds{High: 85, Low: 95}, nil)
	assert.Equal(t, OutcomeLink, w.Apply(context.Background(), "s1", result("p1", "p1.jpg", 90)).Outcome)
}

func TestLinkWriter_OneLinkPerProduct(t *testing.T) {
	ctx := context.Background()
	images := newMemImageRepo()
	w := NewLinkWriter(images, newFakeStorage(), "b", Thresholds{High: 85, Low: 70}, map[string]struct{}{"p9": {}})

	got := w.Apply(ctx, "s1", result("p9", "p9.jpg", 100))
	assert.Equal(t, ReasonHasActiveImage, got.Reason)

	assert.Equal(t, OutcomeLink, w.Apply(ctx, "s1", result("p1", "a.jpg", 100)).Outcome)
	got = w.Apply(ctx, "s1", result("p1", "b.jpg", 95))
	assert.Equal(t, OutcomeSkipped, got.Outcome)
	assert.Equal(t, ReasonHasActiveImage, got.Reason)

	// A link written by someone else after the snapshot is found in the store.
	require.NoError(t, images.SaveImageLink(ctx, model.NewPrimaryLink("p2", "x", "", 100, model.MatchMetadata{}, time.Now())))
	got = w.Apply(ctx, "s1", result("p2", "p2.jpg", 100))
	assert.Equal(t, ReasonHasActiveImage, got.Reason)

	assert.Len(t, images.links, 2)
}

func TestLinkWriter_CandidateExists(t *testing.T) {
	ctx := context.Background()
	images := newMemImageRepo()
	w := NewLinkWriter(images, newFakeStorage(), "b", Thresholds{High: 85, Low: 70}, nil)

	assert.Equal(t, OutcomeCandidate, w.Apply(ctx, "s1", result("p1", "p1_front.jpg", 80)).Outcome)
	got := w.Apply(ctx, "s2", result("p1", "p1_front.jpg", 80))
	assert.Equal(t, OutcomeSkipped, got.Outcome)
	assert.Equal(t, ReasonCandidateExists, got.Reason)
	assert.Len(t, images.candidates, 1)
}

func TestLinkWriter_WriteErrors(t *testing.T) {
	ctx := context.Background()
	images := newMemImageRepo()
	images.failFor["p1"] = errors.New("disk full")
	images.failFor["p2"] = exception.NewBatchError("repo", "connection lost", errors.New("eof"), false, false)
	w := NewLinkWriter(images, newFakeStorage(), "b", Thresholds{High: 85, Low: 70}, nil)

	got := w.Apply(ctx, "s1", result("p1", "p1.jpg", 100))
	assert.Equal(t, ReasonError, got.Reason)
	require.Error(t, got.Err)
	assert.True(t, exception.IsSkippable(got.Err))

	got = w.Apply(ctx, "s1", result("p2", "p2.jpg", 100))
	require.Error(t, got.Err)
	assert.True(t, exception.IsFatal(got.Err))
}
