// Package sql implements the domain repositories on top of the database adapter.
package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// connectionSource resolves the named connection and routes writes through a transaction
// carried by the context.
type connectionSource struct {
	dbResolver database.DBConnectionResolver
	dbName     string
	module     string
}

func (s connectionSource) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := s.dbResolver.ResolveDBConnection(ctx, s.dbName)
	if err != nil {
		return nil, exception.NewBatchError(s.module, fmt.Sprintf("failed to resolve DB connection '%s'", s.dbName), err, false, true)
	}
	return conn, nil
}

func (s connectionSource) getTxExecutor(ctx context.Context) (database.DBExecutor, error) {
	if t, ok := database.TxFromContext(ctx); ok {
		return t, nil
	}
	return s.getDBConnection(ctx)
}
