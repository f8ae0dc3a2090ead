// Package sqlite registers the SQLite dialect and provides its DBProvider.
package sqlite

import (
	"errors"

	"go.uber.org/fx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString returns the file path, with Params appended as a query string.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	if c.Params == "" {
		return c.Database
	}
	return c.Database + "?" + c.Params
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "sqlite")
}

// Module exports the SQLite DBProvider into the db_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+database.DBProviderGroup+`"`)),
)
