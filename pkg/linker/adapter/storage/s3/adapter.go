// Package s3 implements the storage adapter for S3 compatible buckets through minio-go.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ProviderType defines the type identifier for this storage provider.
const ProviderType = "s3"

// Adapter lists and writes objects of an S3 bucket. The last key of each page is cached so
// the next page starts with StartAfter instead of relisting.
type Adapter struct {
	api     *minio.Client
	cfg     storageconfig.StorageConfig
	name    string
	cursors *storage.CursorCache
}

// NewAdapter creates a minio client with static credentials.
func NewAdapter(cfg storageconfig.StorageConfig, name string) (*Adapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 storage '%s': endpoint must be specified", name)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 storage '%s': %w", name, err)
	}
	return &Adapter{api: client, cfg: cfg, name: name, cursors: storage.NewCursorCache(0)}, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return ProviderType }

func (a *Adapter) Close() error { return nil }

func (a *Adapter) bucket(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

func (a *Adapter) ListPage(ctx context.Context, bucket, prefix string, offset, limit int) ([]model.StorageObject, error) {
	bucket = a.bucket(bucket)
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}

	skip := 0
	if offset > 0 {
		if after, ok := a.cursors.Get(bucket, prefix, offset); ok {
			opts.StartAfter = after
		} else {
			logger.Debugf("S3 storage '%s': no cursor for offset %d, scanning from the start.", a.name, offset)
			skip = offset
		}
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([]model.StorageObject, 0, limit)
	for obj := range a.api.ListObjects(listCtx, bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 storage '%s': list s3://%s/%s: %w", a.name, bucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, model.StorageObject{
			Name:        obj.Key,
			Size:        obj.Size,
			ContentType: obj.ContentType,
			Updated:     obj.LastModified,
		})
		if len(out) == limit {
			break
		}
	}

	if len(out) > 0 {
		a.cursors.Put(bucket, prefix, offset+len(out), out[len(out)-1].Name)
	}
	return out, nil
}

func (a *Adapter) PublicURL(bucket, objectName string) string {
	if a.cfg.PublicBaseURL != "" {
		return storage.JoinURL(a.cfg.PublicBaseURL, objectName)
	}
	scheme := "http"
	if a.cfg.UseSSL {
		scheme = "https"
	}
	return storage.JoinURL(fmt.Sprintf("%s://%s/%s", scheme, a.cfg.Endpoint, a.bucket(bucket)), objectName)
}

func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	_, err := a.api.PutObject(ctx, a.bucket(bucket), objectName, data, -1, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 storage '%s': upload %s: %w", a.name, objectName, err)
	}
	return nil
}

var _ storage.StorageConnection = (*Adapter)(nil)

// NewProvider creates the S3 StorageProvider.
func NewProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewBaseProvider(cfg, ProviderType, func(sc storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
		return NewAdapter(sc, name)
	})
}

// Module exports the S3 StorageProvider into the storage_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`)),
)
