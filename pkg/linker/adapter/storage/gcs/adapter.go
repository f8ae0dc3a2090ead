// Package gcs implements the storage adapter for Google Cloud Storage buckets.
package gcs

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/fx"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ProviderType defines the type identifier for this storage provider.
const ProviderType = "gcs"

const defaultPublicBaseURL = "https://storage.googleapis.com"

// Adapter lists and writes objects of a GCS bucket. Page tokens are cached per offset so
// sequential pages continue where the previous page ended.
type Adapter struct {
	client  *gcs.Client
	cfg     storageconfig.StorageConfig
	name    string
	cursors *storage.CursorCache
	fetch   func(ctx context.Context, bucket, prefix string, size int, token string) ([]*gcs.ObjectAttrs, string, error)
}

// NewAdapter creates a client. Without credentials_file the default credentials apply.
func NewAdapter(ctx context.Context, cfg storageconfig.StorageConfig, name string, opts ...option.ClientOption) (*Adapter, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage '%s': failed to create client: %w", name, err)
	}
	a := &Adapter{client: client, cfg: cfg, name: name, cursors: storage.NewCursorCache(0)}
	a.fetch = a.fetchPage
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) Type() string { return ProviderType }

func (a *Adapter) Close() error { return a.client.Close() }

func (a *Adapter) bucket(bucket string) string {
	if bucket == "" {
		return a.cfg.BucketName
	}
	return bucket
}

func (a *Adapter) ListPage(ctx context.Context, bucket, prefix string, offset, limit int) ([]model.StorageObject, error) {
	bucket = a.bucket(bucket)
	token, skip := "", offset
	if offset > 0 {
		if cur, ok := a.cursors.Get(bucket, prefix, offset); ok {
			token, skip = cur, 0
		} else {
			logger.Debugf("GCS storage '%s': no cursor for offset %d, scanning from the start.", a.name, offset)
		}
	}

	attrs, next, err := a.collect(ctx, bucket, prefix, token, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("gcs storage '%s': list gs://%s/%s: %w", a.name, bucket, prefix, err)
	}
	if next != "" {
		a.cursors.Put(bucket, prefix, offset+len(attrs), next)
	}
	return toObjects(attrs), nil
}

// collect skips skip objects from token and gathers the next limit ones. Each request asks
// for no more than is still missing, so the returned token always continues right after the
// last collected object, even when the service answers with short pages.
func (a *Adapter) collect(ctx context.Context, bucket, prefix, token string, skip, limit int) ([]*gcs.ObjectAttrs, string, error) {
	var attrs []*gcs.ObjectAttrs
	for len(attrs) < limit {
		batch, next, err := a.fetch(ctx, bucket, prefix, skip+limit-len(attrs), token)
		if err != nil {
			return nil, "", err
		}
		for _, oa := range batch {
			if skip > 0 {
				skip--
				continue
			}
			attrs = append(attrs, oa)
		}
		token = next
		if next == "" {
			break
		}
	}
	return attrs, token, nil
}

// fetchPage requests one page of at most size objects starting at token.
func (a *Adapter) fetchPage(ctx context.Context, bucket, prefix string, size int, token string) ([]*gcs.ObjectAttrs, string, error) {
	query := &gcs.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Size", "ContentType", "Updated"}); err != nil {
		return nil, "", err
	}
	var batch []*gcs.ObjectAttrs
	next, err := iterator.NewPager(a.client.Bucket(bucket).Objects(ctx, query), size, token).NextPage(&batch)
	return batch, next, err
}

func toObjects(attrs []*gcs.ObjectAttrs) []model.StorageObject {
	out := make([]model.StorageObject, 0, len(attrs))
	for _, oa := range attrs {
		out = append(out, model.StorageObject{
			Name:        oa.Name,
			Size:        oa.Size,
			ContentType: oa.ContentType,
			Updated:     oa.Updated,
		})
	}
	return out
}

func (a *Adapter) PublicURL(bucket, objectName string) string {
	if a.cfg.PublicBaseURL != "" {
		return storage.JoinURL(a.cfg.PublicBaseURL, objectName)
	}
	return storage.JoinURL(defaultPublicBaseURL+"/"+a.bucket(bucket), objectName)
}

func (a *Adapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.client.Bucket(a.bucket(bucket)).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("gcs storage '%s': upload %s: %w", a.name, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage '%s': finalize %s: %w", a.name, objectName, err)
	}
	return nil
}

var _ storage.StorageConnection = (*Adapter)(nil)

// NewProvider creates the GCS StorageProvider.
func NewProvider(cfg *config.Config) storage.StorageProvider {
	return storage.NewBaseProvider(cfg, ProviderType, func(sc storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
		return NewAdapter(context.Background(), sc, name)
	})
}

// Module exports the GCS StorageProvider into the storage_providers group.
var Module = fx.Provide(
	fx.Annotate(NewProvider, fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`)),
)
