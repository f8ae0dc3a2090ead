package storage

import (
	"fmt"
	"sync"

	storageconfig "github.com/tigerroll/imagelink/pkg/linker/adapter/storage/config"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ConnectionFactory opens a connection from its decoded configuration.
type ConnectionFactory func(cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

// BaseProvider caches connections of one storage type by name.
type BaseProvider struct {
	cfg         *config.Config
	storageType string
	factory     ConnectionFactory
	connections map[string]StorageConnection
	mu          sync.RWMutex
}

// NewBaseProvider creates a provider that opens connections with factory.
func NewBaseProvider(cfg *config.Config, storageType string, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		cfg:         cfg,
		storageType: storageType,
		factory:     factory,
		connections: make(map[string]StorageConnection),
	}
}

func (p *BaseProvider) Type() string { return p.storageType }

// GetConnection retrieves an existing connection or opens a new one.
func (p *BaseProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	sc, err := DecodeStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if sc.Type != p.storageType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.storageType, sc.Type)
	}
	conn, err = p.factory(sc, name)
	if err != nil {
		return nil, err
	}
	p.connections[name] = conn
	logger.Infof("Opened %s storage connection '%s'.", p.storageType, name)
	return conn, nil
}

// CloseAll closes all connections managed by this provider.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close storage connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}
