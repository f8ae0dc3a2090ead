package pipeline

import (
	"context"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// CatalogSnapshot is the catalog as read at the start of a run.
type CatalogSnapshot struct {
	// AllProducts are the active products with a SKU.
	AllProducts []model.Product
	// ProductsNeedingImages are the AllProducts entries without an active image: the match universe.
	ProductsNeedingImages []model.Product
	// ProductsWithImages holds the ids of products that already have an active image.
	ProductsWithImages map[string]struct{}
}

// HasImage reports whether productID had an active image when the snapshot was taken.
func (s *CatalogSnapshot) HasImage(productID string) bool {
	_, ok := s.ProductsWithImages[productID]
	return ok
}

// CatalogScanner reads the catalog snapshot.
type CatalogScanner struct {
	catalog repository.CatalogReader
}

// NewCatalogScanner creates a CatalogScanner.
func NewCatalogScanner(catalog repository.CatalogReader) *CatalogScanner {
	return &CatalogScanner{catalog: catalog}
}

// Scan reads active products and the ids of products with images. Any read failure is fatal.
func (c *CatalogScanner) Scan(ctx context.Context) (*CatalogSnapshot, error) {
	const op = "CatalogScanner.Scan"

	products, err := c.catalog.FindActiveProductsWithSKU(ctx)
	if err != nil {
		return nil, fatal(op, "failed to read products", err)
	}
	withImages, err := c.catalog.FindProductIDsWithActiveImage(ctx)
	if err != nil {
		return nil, fatal(op, "failed to read existing product images", err)
	}

	snap := &CatalogSnapshot{
		AllProducts:        products,
		ProductsWithImages: make(map[string]struct{}, len(withImages)),
	}
	for _, id := range withImages {
		snap.ProductsWithImages[id] = struct{}{}
	}
	for _, p := range products {
		if !snap.HasImage(p.ID) {
			snap.ProductsNeedingImages = append(snap.ProductsNeedingImages, p)
		}
	}
	return snap, nil
}

// fatal wraps err as a non-skippable, non-retryable BatchError unless it already is a BatchError.
func fatal(op, message string, err error) error {
	if be, ok := exception.AsBatchError(err); ok && exception.IsFatal(be) {
		return err
	}
	return exception.NewBatchError(op, message, err, false, false)
}
