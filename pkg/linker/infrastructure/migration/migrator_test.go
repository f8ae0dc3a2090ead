package migration_test

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	_ "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/migration"
)

// keepAlive opens a connection that holds the shared in-memory database open while the
// migrator opens and closes its own pool.
func keepAlive(t *testing.T, cfg dbconfig.DatabaseConfig) *gorm.DB {
	t.Helper()
	db, err := gormadapter.Open(cfg, "SILENT")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func tables(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var names []string
	require.NoError(t, db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name").Scan(&names).Error)
	return names
}

func memoryConfig(name string) dbconfig.DatabaseConfig {
	return dbconfig.DatabaseConfig{Type: "sqlite", Database: "file:" + name + "?mode=memory&cache=shared"}
}

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig("migrate_updown")
	db := keepAlive(t, cfg)

	m := migration.NewMigrator(cfg, "SILENT")
	require.NoError(t, m.Up(ctx))

	names := tables(t, db)
	for _, want := range []string{"products", "product_images", "product_image_candidates", "scan_sessions", migration.DefaultMigrationsTable} {
		assert.Contains(t, names, want)
	}

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)

	// a second run is a no-op
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	names = tables(t, db)
	assert.NotContains(t, names, "scan_sessions")
	assert.NotContains(t, names, "product_images")

	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, version)
}

func TestMigrator_CandidateUniqueIndex(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig("migrate_unique")
	db := keepAlive(t, cfg)
	require.NoError(t, migration.NewMigrator(cfg, "SILENT").Up(ctx))

	insert := "INSERT INTO product_image_candidates (id, product_id, image_url, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)"
	require.NoError(t, db.Exec(insert, "c1", "p1", "https://cdn/x.jpg").Error)
	assert.Error(t, db.Exec(insert, "c2", "p1", "https://cdn/x.jpg").Error)
	require.NoError(t, db.Exec(insert, "c3", "p2", "https://cdn/x.jpg").Error)
}

func TestMigrator_CustomFSAndTable(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig("migrate_custom")
	db := keepAlive(t, cfg)

	files := fstest.MapFS{
		"sqlite/000001_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"sqlite/000001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	}
	m := migration.NewMigratorWithFS(cfg, "SILENT", files, "widget_migrations")
	require.NoError(t, m.Up(ctx))
	assert.Contains(t, tables(t, db), "widgets")
	assert.Contains(t, tables(t, db), "widget_migrations")
}

func TestMigrator_Errors(t *testing.T) {
	ctx := context.Background()

	err := migration.NewMigrator(dbconfig.DatabaseConfig{Type: "oracle", Database: "x"}, "SILENT").Up(ctx)
	assert.Error(t, err)

	cfg := config.NewConfig()
	_, err = migration.NewMigratorFromConfig(cfg, "missing")
	assert.Error(t, err)

	cfg.Linker.Database["catalog"] = map[string]interface{}{"type": "sqlite", "database": "file:migrate_cfg?mode=memory&cache=shared"}
	m, err := migration.NewMigratorFromConfig(cfg, "catalog")
	require.NoError(t, err)
	assert.NotNil(t, m)
}
