package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/database"
	dbconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/database/config"
	gormadapter "github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm"
	"github.com/tigerroll/imagelink/pkg/linker/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/migration"
	sqlrepo "github.com/tigerroll/imagelink/pkg/linker/infrastructure/repository/sql"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

type testDB struct {
	resolver database.DBConnectionResolver
	tm       database.TransactionManager
	gdb      *gorm.DB
}

func newTestDB(t *testing.T, name string, migrate bool) *testDB {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Linker.Database["main"] = map[string]interface{}{
		"type":     "sqlite",
		"database": "file:" + name + "?mode=memory&cache=shared",
		"pool":     map[string]interface{}{"max_open_conns": 1},
	}
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { _ = resolver.CloseAll() })

	conn, err := resolver.ResolveDBConnection(context.Background(), "main")
	require.NoError(t, err)

	if migrate {
		m, err := migration.NewMigratorFromConfig(cfg, "main")
		require.NoError(t, err)
		require.NoError(t, m.Up(context.Background()))
	}
	return &testDB{
		resolver: resolver,
		tm:       gormadapter.NewGormTransactionManager(resolver, "main"),
		gdb:      conn.(*gormadapter.GormDBAdapter).GetGormDB(),
	}
}

func (d *testDB) exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	require.NoError(t, d.gdb.Exec(query, args...).Error)
}

func (d *testDB) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.gdb.Table(table).Count(&n).Error)
	return n
}

func TestSQLCatalogRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_catalog", true)

	db.exec(t, "INSERT INTO products (id, sku, name, is_active) VALUES ('p1', '12345', 'Lamp', 1)")
	db.exec(t, "INSERT INTO products (id, sku, name, is_active) VALUES ('p2', NULL, 'Unlabelled', 1)")
	db.exec(t, "INSERT INTO products (id, sku, name, is_active) VALUES ('p3', '67890', 'Retired', 0)")
	db.exec(t, "INSERT INTO products (id, sku, name, is_active) VALUES ('p4', '555', 'Chair', 1)")
	db.exec(t, "INSERT INTO product_images (id, product_id, image_url, is_active, created_at) VALUES ('i1', 'p4', 'u1', 1, CURRENT_TIMESTAMP)")
	db.exec(t, "INSERT INTO product_images (id, product_id, image_url, is_active, created_at) VALUES ('i2', 'p1', 'u2', 0, CURRENT_TIMESTAMP)")

	repo := sqlrepo.NewSQLCatalogRepository(db.resolver, "main")

	products, err := repo.FindActiveProductsWithSKU(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "p1", products[0].ID)
	assert.Equal(t, "12345", products[0].SKUValue())
	assert.Equal(t, "Lamp", products[0].Name)
	assert.Equal(t, "p4", products[1].ID)

	ids, err := repo.FindProductIDsWithActiveImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p4"}, ids)
}

func TestSQLImageRepository_LinksAndCandidates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_images", true)
	repo := sqlrepo.NewSQLImageRepository(db.resolver, db.tm, "main")
	now := time.Now().UTC().Truncate(time.Second)

	has, err := repo.HasActiveImage(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, has)

	meta := model.MatchMetadata{Filename: "12345.jpg", ExtractionSource: "exact_numeric_filename", SessionID: "s1", SKU: "12345"}
	require.NoError(t, repo.SaveImageLink(ctx, model.NewPrimaryLink("p1", "https://cdn/12345.jpg", "Lamp", 100, meta, now)))

	has, err = repo.HasActiveImage(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, has)

	candidate := func(product, url string, confidence int) *model.ImageCandidate {
		return &model.ImageCandidate{
			ID: model.NewID(), ProductID: product, ImageURL: url, AltText: "alt",
			MatchConfidence: confidence, MatchMetadata: meta, Status: model.CandidatePending, CreatedAt: now,
		}
	}

	created, err := repo.SaveImageCandidate(ctx, candidate("p2", "https://cdn/a.jpg", 80))
	require.NoError(t, err)
	assert.True(t, created)

	// same product and url: nothing new
	created, err = repo.SaveImageCandidate(ctx, candidate("p2", "https://cdn/a.jpg", 82))
	require.NoError(t, err)
	assert.False(t, created)
	assert.EqualValues(t, 1, db.count(t, "product_image_candidates"))

	_, err = repo.SaveImageCandidate(ctx, candidate("p3", "https://cdn/b.jpg", 90))
	require.NoError(t, err)
	_, err = repo.SaveImageCandidate(ctx, candidate("p4", "https://cdn/c.jpg", 95))
	require.NoError(t, err)

	pending, err := repo.FindPendingCandidates(ctx, 85)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "p4", pending[0].ProductID)
	assert.Equal(t, "p3", pending[1].ProductID)
	assert.Equal(t, meta, pending[0].MatchMetadata)
	assert.Equal(t, model.CandidatePending, pending[0].Status)
}

func TestSQLImageRepository_PromoteCandidate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_promote", true)
	repo := sqlrepo.NewSQLImageRepository(db.resolver, db.tm, "main")
	now := time.Now().UTC()

	cand := &model.ImageCandidate{
		ID: model.NewID(), ProductID: "p9", ImageURL: "https://cdn/9.jpg", AltText: "Desk",
		MatchConfidence: 90, Status: model.CandidatePending, CreatedAt: now,
	}
	_, err := repo.SaveImageCandidate(ctx, cand)
	require.NoError(t, err)

	stale := *cand
	require.NoError(t, repo.PromoteCandidate(ctx, cand, cand.Promote("s2", now)))
	assert.Equal(t, model.CandidatePromoted, cand.Status)
	require.NotNil(t, cand.ReviewedAt)

	has, err := repo.HasActiveImage(ctx, "p9")
	require.NoError(t, err)
	assert.True(t, has)

	pending, err := repo.FindPendingCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a second promotion of the same candidate is rejected and its link rolled back
	err = repo.PromoteCandidate(ctx, &stale, stale.Promote("s3", now))
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.EqualValues(t, 1, db.count(t, "product_images"))
	assert.Equal(t, model.CandidatePending, stale.Status)
}

func TestSQLImageRepository_RejectCandidate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_reject", true)
	repo := sqlrepo.NewSQLImageRepository(db.resolver, db.tm, "main")
	now := time.Now().UTC()

	cand := &model.ImageCandidate{
		ID: model.NewID(), ProductID: "p7", ImageURL: "https://cdn/7.jpg",
		MatchConfidence: 90, Status: model.CandidatePending, CreatedAt: now,
	}
	_, err := repo.SaveImageCandidate(ctx, cand)
	require.NoError(t, err)

	stale := *cand
	require.NoError(t, repo.RejectCandidate(ctx, cand))
	assert.Equal(t, model.CandidateRejected, cand.Status)
	require.NotNil(t, cand.ReviewedAt)
	assert.EqualValues(t, 1, db.count(t, "product_image_candidates"))

	pending, err := repo.FindPendingCandidates(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	err = repo.RejectCandidate(ctx, &stale)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
}

func TestSQLSessionRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_sessions", true)
	repo := sqlrepo.NewSQLSessionRepository(db.resolver, "main")
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.FindSessionByID(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	s := model.NewScanSession("sess-1", 6, 70, 85, start)
	require.NoError(t, repo.SaveSession(ctx, s))
	assert.Error(t, repo.SaveSession(ctx, s), "duplicate id")

	s.Status = model.SessionRunning
	s.ProgressPercent = 50
	s.StepName = "match"
	s.CurrentStepIndex = 3
	s.Counters.ImagesScanned = 1200
	s.Errors = append(s.Errors, "write: boom")
	s.StepErrors["write"] = []string{"boom"}
	require.NoError(t, repo.UpdateSession(ctx, s))
	assert.Equal(t, 1, s.Version)

	got, err := repo.FindSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionRunning, got.Status)
	assert.Equal(t, 50.0, got.ProgressPercent)
	assert.Equal(t, "match", got.StepName)
	assert.EqualValues(t, 1200, got.Counters.ImagesScanned)
	assert.Equal(t, model.FailureList{"write: boom"}, got.Errors)
	assert.Equal(t, []string{"boom"}, got.StepErrors["write"])
	assert.Nil(t, got.Summary)
	assert.Equal(t, 85, got.HighThreshold)
	assert.True(t, start.Equal(got.StartedAt))
	assert.Equal(t, 1, got.Version)

	// a writer holding the old version loses
	stale := got.Clone()
	stale.Version = 0
	err = repo.UpdateSession(ctx, stale)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 0, stale.Version)

	got.Summary = &model.SessionSummary{MatchesFound: 2, BySource: map[string]int{"multi_sku": 2}}
	require.NoError(t, repo.UpdateSession(ctx, got))
	again, err := repo.FindSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, again.Summary)
	assert.Equal(t, 2, again.Summary.BySource["multi_sku"])
}

func TestSQLSessionRepository_MarkSessionError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "repo_mark", true)
	repo := sqlrepo.NewSQLSessionRepository(db.resolver, "main")

	s := model.NewScanSession("sess-2", 6, 70, 85, time.Now().UTC())
	require.NoError(t, repo.SaveSession(ctx, s))

	marked, err := repo.MarkSessionError(ctx, "sess-2", "cancelled")
	require.NoError(t, err)
	assert.True(t, marked)

	got, err := repo.FindSessionByID(ctx, "sess-2")
	require.NoError(t, err)
	assert.Equal(t, model.SessionError, got.Status)
	assert.Equal(t, model.FailureList{"cancelled"}, got.Errors)
	assert.NotNil(t, got.CompletedAt)

	marked, err = repo.MarkSessionError(ctx, "sess-2", "cancelled")
	require.NoError(t, err)
	assert.False(t, marked, "finished sessions are left alone")

	_, err = repo.MarkSessionError(ctx, "ghost", "cancelled")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestSQLSessionRepository_MissingTable(t *testing.T) {
	db := newTestDB(t, "repo_nomigrate", false)
	repo := sqlrepo.NewSQLSessionRepository(db.resolver, "main")
	_, err := repo.FindSessionByID(context.Background(), "x")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

type staticResolver struct {
	conn database.DBConnection
	err  error
}

func (r staticResolver) ResolveDBConnection(context.Context, string) (database.DBConnection, error) {
	return r.conn, r.err
}

func newMockConn(t *testing.T) (database.DBConnection, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: "mysql"}, "main")
	require.NoError(t, err)
	return conn, mock
}

func TestRepositories_ErrorPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("catalog read failure is fatal", func(t *testing.T) {
		conn, mock := newMockConn(t)
		mock.ExpectQuery("SELECT (.+) FROM `products`").WillReturnError(errors.New("connection lost"))

		_, err := sqlrepo.NewSQLCatalogRepository(staticResolver{conn: conn}, "main").FindActiveProductsWithSKU(ctx)
		require.Error(t, err)
		assert.True(t, exception.IsFatal(err))
		assert.False(t, exception.IsSkippable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("link write failure is skippable", func(t *testing.T) {
		conn, mock := newMockConn(t)
		mock.ExpectExec("INSERT INTO `product_images`").WillReturnError(errors.New("deadlock"))

		repo := sqlrepo.NewSQLImageRepository(staticResolver{conn: conn}, nil, "main")
		err := repo.SaveImageLink(ctx, model.NewPrimaryLink("p1", "u", "alt", 100, model.MatchMetadata{}, time.Now()))
		require.Error(t, err)
		assert.True(t, exception.IsSkippable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unresolvable connection is retryable", func(t *testing.T) {
		repo := sqlrepo.NewSQLSessionRepository(staticResolver{err: errors.New("no route")}, "main")
		_, err := repo.FindSessionByID(ctx, "x")
		require.Error(t, err)
		assert.True(t, exception.IsTemporary(err))
	})

	t.Run("session update conflict", func(t *testing.T) {
		conn, mock := newMockConn(t)
		mock.ExpectExec("UPDATE `scan_sessions`").WillReturnResult(sqlmock.NewResult(0, 0))

		repo := sqlrepo.NewSQLSessionRepository(staticResolver{conn: conn}, "main")
		s := model.NewScanSession("s", 6, 70, 85, time.Now())
		s.Version = 4
		err := repo.UpdateSession(ctx, s)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, 4, s.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
