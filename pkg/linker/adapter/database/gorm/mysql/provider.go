// Package mysql registers the MySQL dialect and provides its DBProvider.
package mysql

import (
	"fmt"
	"net/url"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
)

func init() {
	gormadapter.RegisterDialector("mysql", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	})
}

// ConnectionString formats the DSN with the driver's own Config so credentials are escaped.
// Timestamps are parsed into time.Time and stored as UTC.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	mc := mysqldriver.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	if c.Params != "" {
		values, err := url.ParseQuery(c.Params)
		if err != nil {
			return "", fmt.Errorf("invalid mysql params %q: %w", c.Params, err)
		}
		mc.Params = make(map[string]string, len(values))
		for k := range values {
			mc.Params[k] = values.Get(k)
		}
	}
	return mc.FormatDSN(), nil
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, "mysql")
}

// Module exports the MySQL DBProvider into the db_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+database.DBProviderGroup+`"`)),
)
