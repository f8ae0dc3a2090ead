package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

func writeFiles(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, n := range files {
		p := filepath.Join(root, filepath.FromSlash(n))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(n), 0o644))
	}
}

func names(objs []model.StorageObject) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Name)
	}
	return out
}

func TestAdapter_ListPage(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, filepath.Join(base, "images"),
		"b/00012345.jpg", "a/12345.png", "c/notes.txt", "a/67890_front.webp", "root.gif")

	a, err := NewAdapter(storageconfig.StorageConfig{BaseDir: base}, "dev")
	require.NoError(t, err)
	ctx := context.Background()

	page, err := a.ListPage(ctx, "images", "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/12345.png", "a/67890_front.webp"}, names(page))
	assert.Equal(t, "image/png", page[0].ContentType)
	assert.EqualValues(t, len("a/12345.png"), page[0].Size)

	page, err = a.ListPage(ctx, "images", "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b/00012345.jpg", "c/notes.txt"}, names(page))

	page, err = a.ListPage(ctx, "images", "", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"root.gif"}, names(page))

	page, err = a.ListPage(ctx, "images", "", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)

	page, err = a.ListPage(ctx, "images", "a/", 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestAdapter_ListPage_CancelledContext(t *testing.T) {
	base := t.TempDir()
	writeFiles(t, base, "x/1.jpg")
	a, err := NewAdapter(storageconfig.StorageConfig{BaseDir: base}, "dev")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.ListPage(ctx, "x", "", 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAdapter_UploadAndURL(t *testing.T) {
	base := t.TempDir()
	a, err := NewAdapter(storageconfig.StorageConfig{BaseDir: base, BucketName: "reports"}, "dev")
	require.NoError(t, err)

	require.NoError(t, a.Upload(context.Background(), "", "2024/run.parquet", bytes.NewBufferString("PAR1"), "application/octet-stream"))
	data, err := os.ReadFile(filepath.Join(base, "reports", "2024", "run.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "PAR1", string(data))

	url := a.PublicURL("", "2024/run.parquet")
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "/reports/2024/run.parquet"))

	err = a.Upload(context.Background(), "reports", "../../escape.txt", bytes.NewBufferString("x"), "text/plain")
	assert.ErrorContains(t, err, "outside of base_dir")

	withBase, err := NewAdapter(storageconfig.StorageConfig{BaseDir: base, PublicBaseURL: "https://cdn.example.com/"}, "cdn")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a/1.jpg", withBase.PublicURL("images", "a/1.jpg"))
}

func TestNewAdapter_Validation(t *testing.T) {
	_, err := NewAdapter(storageconfig.StorageConfig{}, "dev")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewAdapter(storageconfig.StorageConfig{BaseDir: file}, "dev")
	assert.ErrorContains(t, err, "not a directory")

	created := filepath.Join(t.TempDir(), "new", "dir")
	_, err = NewAdapter(storageconfig.StorageConfig{BaseDir: created}, "dev")
	require.NoError(t, err)
	assert.DirExists(t, created)
}

func TestProviderAndResolver(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Linker.Storage["images"] = map[string]interface{}{"type": "local", "base_dir": t.TempDir()}
	cfg.Linker.Storage["cloud"] = map[string]interface{}{"type": "gcs"}

	resolver := storage.NewConnectionResolver(storage.ResolverParams{
		Providers: []storage.StorageProvider{NewProvider(cfg)},
		Cfg:       cfg,
	})
	conn, err := resolver.ResolveStorageConnection(context.Background(), "images")
	require.NoError(t, err)
	assert.Equal(t, "local", conn.Type())
	assert.Equal(t, "images", conn.Name())

	again, err := resolver.ResolveStorageConnection(context.Background(), "images")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveStorageConnection(context.Background(), "cloud")
	assert.ErrorContains(t, err, "no storage provider found for type 'gcs'")
	assert.NoError(t, resolver.CloseAll())
}
