package repository

import (
	"context"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// CatalogReader is the read side of the product catalog.
type CatalogReader interface {
	// FindActiveProductsWithSKU returns active products whose SKU is not null.
	FindActiveProductsWithSKU(ctx context.Context) ([]model.Product, error)

	// FindProductIDsWithActiveImage returns the distinct ids of products that already have an active image link.
	FindProductIDsWithActiveImage(ctx context.Context) ([]string, error)
}
