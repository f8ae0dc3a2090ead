package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
)

// GormTxAdapter is an open gorm transaction.
type GormTxAdapter struct {
	*executor
}

// GormTransactionManager begins transactions on a connection obtained from the resolver, so a
// transaction always starts on a healthy pool.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

// NewGormTransactionManager creates a manager for the named connection.
func NewGormTransactionManager(resolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: resolver, dbName: dbName}
}

func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (database.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, err
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is not a gorm connection (%T)", m.dbName, conn)
	}
	txDB := adapter.db.WithContext(ctx).Begin(opts...)
	if txDB.Error != nil {
		return nil, txDB.Error
	}
	return &GormTxAdapter{executor: &executor{db: txDB, dbType: adapter.Type(), inTx: true}}, nil
}

func (m *GormTransactionManager) Commit(t database.Tx) error {
	gtx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return gtx.db.Commit().Error
}

func (m *GormTransactionManager) Rollback(t database.Tx) error {
	gtx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("unexpected transaction type %T", t)
	}
	return gtx.db.Rollback().Error
}

// GormTransactionManagerFactory is the gorm database.TransactionManagerFactory.
type GormTransactionManagerFactory struct {
	dbResolver database.DBConnectionResolver
}

// NewGormTransactionManagerFactory creates an instance of GormTransactionManagerFactory.
func NewGormTransactionManagerFactory(dbResolver database.DBConnectionResolver) database.TransactionManagerFactory {
	return &GormTransactionManagerFactory{dbResolver: dbResolver}
}

func (f *GormTransactionManagerFactory) NewTransactionManager(dbName string) database.TransactionManager {
	return NewGormTransactionManager(f.dbResolver, dbName)
}

var (
	_ database.Tx                 = (*GormTxAdapter)(nil)
	_ database.TransactionManager = (*GormTransactionManager)(nil)
)
