// Package local serves a directory tree as a bucket, for development and tests.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ProviderType defines the type identifier for this local storage provider.
const ProviderType = "local"

// Adapter lists and writes files below BaseDir/<bucket>.
type Adapter struct {
	cfg  storageconfig.StorageConfig
	name string
}

// NewAdapter validates BaseDir, creating it when missing.
func NewAdapter(cfg storageconfig.StorageConfig, name string) (*Adapter, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': base_dir must be specified", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create base_dir '%s': %w", name, cfg.BaseDir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("local storage adapter '%s': failed to stat base_dir '%s': %w", name, cfg.BaseDir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("local storage adapter '%s': base_dir '%s' is not a directory", name, cfg.BaseDir)
	}
	return &Adapter{cfg: cfg, name: name}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return ProviderType }

func (a *Adapter) Close() error { return nil }

// ListPage walks the bucket directory, sorts the object names lexically and returns one window.
func (a *Adapter) ListPage(ctx context.Context, bucket, prefix string, offset, limit int) ([]model.StorageObject, error) {
	root, err := a.resolvePath(bucket, "")
	if err != nil {
		return nil, err
	}

	var objects []model.StorageObject
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, model.StorageObject{
			Name:        name,
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(path.Ext(name)),
			Updated:     info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list '%s' with prefix '%s': %w", root, prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	if offset >= len(objects) {
		return []model.StorageObject{}, nil
	}
	end := len(objects)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	logger.Debugf("Local storage '%s': listed %d objects at offset %d.", a.name, end-offset, offset)
	return objects[offset:end], nil
}

func (a *Adapter) PublicURL(bucket, objectName string) string {
	if a.cfg.PublicBaseURL != "" {
		return storage.JoinURL(a.cfg.PublicBaseURL, objectName)
	}
	full, err := a.resolvePath(bucket, objectName)
	if err != nil {
		full = filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(objectName))
	}
	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}
	return "file://" + filepath.ToSlash(abs)
}

func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	full, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for '%s': %w", full, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", full, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write file '%s': %w", full, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file '%s': %w", full, err)
	}
	logger.Debugf("Local storage '%s': wrote %s.", a.name, full)
	return nil
}

// resolvePath maps bucket and objectName under BaseDir and refuses paths escaping it.
func (a *Adapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	full := filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(objectName))

	absBase, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", full, err)
	}
	if absFull != absBase && !strings.HasPrefix(absFull, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", full, a.cfg.BaseDir)
	}
	return full, nil
}

var _ storage.StorageConnection = (*Adapter)(nil)

// NewProvider creates the local StorageProvider.
func NewProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewBaseProvider(cfg, ProviderType, func(sc storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
		return NewAdapter(sc, name)
	})
}

// Module exports the local StorageProvider into the storage_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`)),
)
