package sql

import (
	"context"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// SQLCatalogRepository reads products and existing image links. Every failure is fatal to
// the caller, so errors are neither skippable nor retryable.
type SQLCatalogRepository struct {
	connectionSource
}

// NewSQLCatalogRepository creates a catalog reader on the named connection.
func NewSQLCatalogRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLCatalogRepository {
	return &SQLCatalogRepository{connectionSource{dbResolver: dbResolver, dbName: dbName, module: "SQLCatalogRepository"}}
}

func (r *SQLCatalogRepository) FindActiveProductsWithSKU(ctx context.Context) ([]model.Product, error) {
	const op = "SQLCatalogRepository.FindActiveProductsWithSKU"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var entities []ProductEntity
	if err := conn.ExecuteQueryWhere(ctx, &entities, "is_active = ? AND sku IS NOT NULL", []interface{}{true}, "id"); err != nil {
		return nil, exception.NewBatchError(op, "failed to read active products", err, false, false)
	}

	products := make([]model.Product, 0, len(entities))
	for i := range entities {
		products = append(products, toDomainProduct(&entities[i]))
	}
	return products, nil
}

func (r *SQLCatalogRepository) FindProductIDsWithActiveImage(ctx context.Context) ([]string, error) {
	const op = "SQLCatalogRepository.FindProductIDsWithActiveImage"
	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := conn.Pluck(ctx, &ImageLinkEntity{}, "product_id", &ids, map[string]interface{}{"is_active": true}); err != nil {
		return nil, exception.NewBatchError(op, "failed to read products with images", err, false, false)
	}
	return ids, nil
}

var _ repository.CatalogReader = (*SQLCatalogRepository)(nil)
