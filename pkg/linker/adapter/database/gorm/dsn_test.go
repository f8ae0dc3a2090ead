package gorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/mysql"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/postgres"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/sqlite"
)

func TestConnectionStrings(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{Host: "db", Port: 5432, User: "app", Password: "s3cret", Database: "catalog", Schema: "shop"}
	assert.Equal(t, "host=db port=5432 user=app password=s3cret dbname=catalog sslmode=disable search_path=shop",
		postgres.ConnectionString(cfg))

	cfg.Port = 3306
	cfg.Params = "charset=utf8mb4"
	dsn, err := mysql.ConnectionString(cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:s3cret@tcp(db:3306)/catalog?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	assert.Equal(t, "/tmp/x.db?_busy_timeout=5000",
		sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "/tmp/x.db", Params: "_busy_timeout=5000"}))
}
