// Package database declares the connection, executor and transaction abstractions used by the
// SQL repositories. The gorm subpackage implements them.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
)

// Operations accepted by DBExecutor.ExecuteUpdate.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// DBExecutor defines the read and write operations shared by connections and transactions.
type DBExecutor interface {
	// ExecuteUpdate performs a write operation (OpCreate, OpUpdate or OpDelete). For OpUpdate every
	// column of model is written and query adds conditions on top of the primary key.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, resolving conflicts on conflictColumns by updating updateColumns
	// or, when updateColumns is empty, by doing nothing.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery finds the records matching the equality conditions in query.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced executes a read operation with optional sorting and limiting.
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	// ExecuteQueryWhere finds records with a raw condition such as "sku IS NOT NULL AND is_active = ?".
	ExecuteQueryWhere(ctx context.Context, target interface{}, condition string, args []interface{}, orderBy string) error

	// Count counts the number of records matching the query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)

	// Pluck retrieves the distinct values of column.
	Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error

	// IsTableNotExistError reports whether err means the table is missing (migrations not applied).
	IsTableNotExistError(err error) bool
}

// DBConnection is a named, pooled database connection.
type DBConnection interface {
	DBExecutor

	// Name returns the configured connection name.
	Name() string
	// Type returns the database type ("sqlite", "postgres", "mysql").
	Type() string
	// Close closes the underlying pool.
	Close() error
	// RefreshConnection pings the pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// ForceReconnect closes and reopens the named connection.
	ForceReconnect(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
}

// DBConnectionResolver resolves a healthy connection by name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group collecting every DBProvider.
const DBProviderGroup = "db_providers"

// Tx is an open transaction.
type Tx interface {
	DBExecutor
}

// TransactionManager begins and ends transactions on one connection.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(t Tx) error
	Rollback(t Tx) error
}

// TransactionManagerFactory creates a TransactionManager for a named connection.
type TransactionManagerFactory interface {
	NewTransactionManager(dbName string) TransactionManager
}
