package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/configbinder"
)

// DecodeStorageConfig reads the named storage from linker.storage.
func DecodeStorageConfig(cfg *config.Config, name string) (storageconfig.StorageConfig, error) {
	var sc storageconfig.StorageConfig
	if err := configbinder.BindNamed(cfg.Linker.Storage, name, &sc); err != nil {
		return sc, fmt.Errorf("storage '%s': %w", name, err)
	}
	if sc.Type == "" {
		return sc, fmt.Errorf("storage '%s': type is required", name)
	}
	return sc, nil
}

// JoinURL joins a base URL and an object name with exactly one slash, escaping each
// path segment of the object name.
func JoinURL(base, objectName string) string {
	segments := strings.Split(strings.TrimLeft(objectName, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// ConnectionResolver picks the provider by the configured storage type.
type ConnectionResolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// ResolverParams are the inputs of NewConnectionResolver.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

// NewConnectionResolver creates a ConnectionResolver.
func NewConnectionResolver(p ResolverParams) *ConnectionResolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, sp := range p.Providers {
		providers[sp.Type()] = sp
	}
	return &ConnectionResolver{providers: providers, cfg: p.Cfg}
}

func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	sc, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", sc.Type, name)
	}
	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage connection '%s' from provider '%s': %w", name, sc.Type, err)
	}
	return conn, nil
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage provider '%s': %w", p.Type(), err))
		}
	}
	return result
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)

// Module provides the storage connection resolver. Providers come from the subpackages.
var Module = fx.Options(
	fx.Provide(
		NewConnectionResolver,
		func(r *ConnectionResolver) StorageConnectionResolver { return r },
	),
	fx.Invoke(func(lc fx.Lifecycle, r *ConnectionResolver) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return r.CloseAll() }})
	}),
)
