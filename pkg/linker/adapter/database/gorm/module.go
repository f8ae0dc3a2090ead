package gorm

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
)

// Module provides the connection resolver and the transaction manager factory. Dialect
// providers are supplied by the sqlite, postgres and mysql subpackages.
var Module = fx.Options(
	fx.Provide(
		NewGormDBConnectionResolver,
		func(r *GormDBConnectionResolver) database.DBConnectionResolver { return r },
		NewGormTransactionManagerFactory,
	),
	fx.Invoke(func(lc fx.Lifecycle, r *GormDBConnectionResolver) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	}),
)
