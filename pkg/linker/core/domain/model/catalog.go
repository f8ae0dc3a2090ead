package model

import (
	"path"
	"strings"
	"time"
)

// Product is a catalog entry as seen by the pipeline. The catalog is read only here.
type Product struct {
	ID       string
	SKU      *string
	Name     string
	IsActive bool
}

// SKUValue returns the SKU or "" when it is null.
func (p Product) SKUValue() string {
	if p.SKU == nil {
		return ""
	}
	return *p.SKU
}

// StorageObject is one entry of a bucket listing.
type StorageObject struct {
	// Name is the object key, possibly containing "/" separated path segments.
	Name        string
	Size        int64
	ContentType string
	Updated     time.Time
}

// BaseName returns the last path segment of the object name.
func (o StorageObject) BaseName() string {
	return path.Base(o.Name)
}

// Dir returns the path part of the object name without the file name, or "" for root objects.
func (o StorageObject) Dir() string {
	if !strings.Contains(o.Name, "/") {
		return ""
	}
	return path.Dir(o.Name)
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}, ".svg": {},
}

// IsImageName reports whether name ends in a recognized image extension (case-insensitive).
func IsImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(path.Ext(name))]
	return ok
}
