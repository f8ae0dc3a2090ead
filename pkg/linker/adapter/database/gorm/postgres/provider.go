// Package postgres registers the PostgreSQL dialect and provides its DBProvider.
package postgres

import (
	"fmt"
	"strings"

	"go.uber.org/fx"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
)

func init() {
	gormadapter.RegisterDialector("postgres", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a key/value DSN understood by pgx.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	parts := []string{
		fmt.Sprintf("host=%s", c.Host),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("user=%s", c.User),
		fmt.Sprintf("password=%s", c.Password),
		fmt.Sprintf("dbname=%s", c.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if c.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", c.Schema))
	}
	return strings.Join(parts, " ")
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "postgres")
}

// Module exports the PostgreSQL DBProvider into the db_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+database.DBProviderGroup+`"`)),
)
