// Package storage defines the blob storage abstractions used by the pipeline: paginated
// listing, public URL resolution and uploads. The local, gcs and s3 subpackages implement them.
package storage

import (
	"context"
	"io"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// ObjectLister lists a bucket in pages.
type ObjectLister interface {
	// ListPage returns at most limit objects under prefix, starting at offset in the
	// backend's listing order. A page shorter than limit is the last one.
	ListPage(ctx context.Context, bucket, prefix string, offset, limit int) ([]model.StorageObject, error)
}

// URLResolver resolves the public URL of an object.
type URLResolver interface {
	PublicURL(bucket, objectName string) string
}

// Uploader writes an object.
type Uploader interface {
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
}

// StorageConnection is a named connection to one storage backend.
type StorageConnection interface {
	ObjectLister
	URLResolver
	Uploader

	Name() string
	Type() string
	Close() error
}

// StorageProvider opens and caches connections of one storage type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver resolves a connection by its configured name.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}

// StorageProviderGroup is the fx value group collecting every StorageProvider.
const StorageProviderGroup = "storage_providers"
