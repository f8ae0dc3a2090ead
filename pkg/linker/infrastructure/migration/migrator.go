// Package migration applies the embedded schema migrations for the image linker tables.
package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"

	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// DefaultMigrationsTable keeps the version bookkeeping apart from any schema_migrations
// table the storefront already owns.
const DefaultMigrationsTable = "imagelink_schema_migrations"

//go:embed sql
var embedded embed.FS

// Files returns the embedded migrations, one directory per database type.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator applies or reverts schema migrations.
type Migrator interface {
	// Up applies all pending migrations. An up-to-date schema is not an error.
	Up(ctx context.Context) error
	// Down reverts every applied migration.
	Down(ctx context.Context) error
	// Version returns the applied version and whether the last migration left the schema dirty.
	// A schema without migrations reports version 0.
	Version(ctx context.Context) (uint, bool, error)
}

type migratorImpl struct {
	dbConfig    dbconfig.DatabaseConfig
	sqlLogLevel string
	table       string
	files       fs.FS
}

// NewMigrator creates a Migrator for dbConfig using the embedded migrations.
func NewMigrator(dbConfig dbconfig.DatabaseConfig, sqlLogLevel string) Migrator {
	return NewMigratorWithFS(dbConfig, sqlLogLevel, Files(), DefaultMigrationsTable)
}

// NewMigratorWithFS creates a Migrator reading <dbType>/*.sql from files.
func NewMigratorWithFS(dbConfig dbconfig.DatabaseConfig, sqlLogLevel string, files fs.FS, table string) Migrator {
	if table == "" {
		table = DefaultMigrationsTable
	}
	return &migratorImpl{dbConfig: dbConfig, sqlLogLevel: sqlLogLevel, table: table, files: files}
}

// NewMigratorFromConfig resolves the named connection under linker.database.
func NewMigratorFromConfig(cfg *config.Config, dbRef string) (Migrator, error) {
	dbConfig, err := gormadapter.DecodeDatabaseConfig(cfg, dbRef)
	if err != nil {
		return nil, exception.NewBatchError("migration", "failed to read database configuration", err, false, false)
	}
	return NewMigrator(dbConfig, cfg.Linker.System.Logging.SQLLevel), nil
}

func (m *migratorImpl) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mi *migrate.Migrate) error {
		err := mi.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("Database schema for '%s' is up to date.", m.dbConfig.Type)
			return nil
		}
		return err
	})
}

func (m *migratorImpl) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(mi *migrate.Migrate) error {
		err := mi.Down()
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return err
	})
}

func (m *migratorImpl) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(ctx, "version", func(mi *migrate.Migrate) error {
		var err error
		version, dirty, err = mi.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		return err
	})
	return version, dirty, err
}

// run opens a dedicated pool for the migration. golang-migrate closes the *sql.DB it was
// handed, so the application's shared connections are never passed in.
func (m *migratorImpl) run(ctx context.Context, action string, fn func(*migrate.Migrate) error) (err error) {
	const op = "Migrator"
	mi, err := m.open()
	if err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("failed to prepare %s migration", action), err, false, false)
	}
	defer func() {
		srcErr, dbErr := mi.Close()
		var closeErr error
		if srcErr != nil {
			closeErr = multierror.Append(closeErr, srcErr)
		}
		if dbErr != nil {
			closeErr = multierror.Append(closeErr, dbErr)
		}
		if closeErr != nil {
			logger.Warnf("Closing migration resources failed: %v", closeErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mi.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	logger.Infof("Running %s migration on '%s' (table %s).", action, m.dbConfig.Type, m.table)
	if err := fn(mi); err != nil {
		return exception.NewBatchError(op, fmt.Sprintf("%s migration failed", action), err, false, false)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return exception.NewBatchError(op, fmt.Sprintf("%s migration interrupted", action), ctxErr, false, false)
	}
	return nil
}

func (m *migratorImpl) open() (*migrate.Migrate, error) {
	cfg := m.dbConfig
	if cfg.Type == "mysql" {
		cfg.Params = withParam(cfg.Params, "multiStatements", "true")
	}

	gdb, err := gormadapter.Open(cfg, m.sqlLogLevel)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	driver, err := m.databaseDriver(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	src, err := iofs.New(m.files, cfg.Type)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("failed to read migrations for %s: %w", cfg.Type, err)
	}
	mi, err := migrate.NewWithInstance("iofs", src, cfg.Type, driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mi.Log = migrateLogger{}
	return mi, nil
}

func (m *migratorImpl) databaseDriver(sqlDB *sql.DB) (migratedb.Driver, error) {
	switch m.dbConfig.Type {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.table})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.table})
	case "sqlite":
		return sqlite3.WithInstance(sqlDB, &sqlite3.Config{MigrationsTable: m.table})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbConfig.Type)
	}
}

func withParam(params, key, value string) string {
	values, err := url.ParseQuery(params)
	if err != nil {
		values = url.Values{}
	}
	values.Set(key, value)
	return values.Encode()
}

// migrateLogger forwards golang-migrate progress to the application logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debugf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
