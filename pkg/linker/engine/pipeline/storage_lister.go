package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/engine/step/retry"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// DefaultPageSize is used when the configured page size is not positive.
const DefaultPageSize = 500

// StorageLister pages through a bucket and keeps the image objects.
type StorageLister struct {
	lister   storage.ObjectLister
	bucket   string
	prefix   string
	pageSize int
	limiter  *rate.Limiter
	retry    retry.RetryPolicy
}

// NewStorageLister creates a lister for the configured bucket and prefix. Page fetches are
// throttled to cfg.ListRatePerSecond when it is positive and retried on transient errors.
func NewStorageLister(lister storage.ObjectLister, cfg config.PipelineConfig) *StorageLister {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	limit := rate.Inf
	if cfg.ListRatePerSecond > 0 {
		limit = rate.Limit(cfg.ListRatePerSecond)
	}
	burst := cfg.ListBurst
	if burst <= 0 {
		burst = 1
	}
	return &StorageLister{
		lister:   lister,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(limit, burst),
		retry: retry.NewDefaultRetryPolicyFactory().Create(cfg.RetryMaxAttempts,
			time.Duration(cfg.RetryIntervalMillis)*time.Millisecond, cfg.RetryableErrors),
	}
}

// ListAllImages lists every page until a short one and returns the objects with an image
// extension. A page that still fails after its retries is fatal.
func (l *StorageLister) ListAllImages(ctx context.Context) ([]model.StorageObject, error) {
	return l.ListAllImagesWithProgress(ctx, nil)
}

// ListAllImagesWithProgress is ListAllImages calling onPage after each page with the page
// count and the number of objects listed so far.
func (l *StorageLister) ListAllImagesWithProgress(ctx context.Context, onPage func(pages, listed int)) ([]model.StorageObject, error) {
	const op = "StorageLister.ListAllImages"

	var images []model.StorageObject
	listed := 0
	for page := 0; ; page++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, fatal(op, "listing interrupted", err)
		}
		offset := page * l.pageSize
		objects, err := retry.Do(ctx, l.retry, func(ctx context.Context) ([]model.StorageObject, error) {
			return l.lister.ListPage(ctx, l.bucket, l.prefix, offset, l.pageSize)
		})
		if err != nil {
			return nil, fatal(op, fmt.Sprintf("failed to list bucket '%s' at offset %d", l.bucket, offset), err)
		}
		listed += len(objects)
		for _, o := range objects {
			if model.IsImageName(o.Name) {
				images = append(images, o)
			}
		}
		if onPage != nil {
			onPage(page+1, listed)
		}
		logger.Debugf("Storage page %d: %d objects (%d listed).", page+1, len(objects), listed)
		if len(objects) < l.pageSize {
			break
		}
	}
	logger.Infof("Listed %d objects in bucket '%s' (prefix '%s'), %d images.", listed, l.bucket, l.prefix, len(images))
	return images, nil
}
