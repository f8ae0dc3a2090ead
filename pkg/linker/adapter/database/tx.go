package database

import (
	"context"
	"fmt"

	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

type txKey struct{}

// WithTx returns a context carrying t. Repositories route writes through it.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// TxFromContext returns the transaction stored by WithTx.
func TxFromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok
}

// ExecutorFromContext returns the transaction in ctx, or fallback when there is none.
func ExecutorFromContext(ctx context.Context, fallback DBExecutor) DBExecutor {
	if t, ok := TxFromContext(ctx); ok {
		return t
	}
	return fallback
}

// RunInTx runs fn inside a transaction. fn receives a context carrying the transaction. The
// transaction is committed when fn returns nil and rolled back otherwise, including on panic.
func RunInTx(ctx context.Context, tm TransactionManager, fn func(ctx context.Context) error) (err error) {
	t, err := tm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tm.Rollback(t); rbErr != nil {
				logger.Errorf("Rollback after panic failed: %v", rbErr)
			}
			panic(p)
		}
	}()

	if err = fn(WithTx(ctx, t)); err != nil {
		if rbErr := tm.Rollback(t); rbErr != nil {
			logger.Errorf("Rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}
	if err = tm.Commit(t); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
