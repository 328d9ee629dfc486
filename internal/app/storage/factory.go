// Package storage creates the storage-dependent components of the server.
// Components created by one factory share the same backend: tracked
// documents, index queues and rebuild statuses all live in MongoDB, or all in
// process memory.
package storage

import (
	"context"
	"fmt"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/status"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family
type Factory interface {
	// Provider returns the collections holding tracked documents and index
	// queues
	Provider() docstore.Provider

	// CreateStatusPersistence creates the store of background rebuild statuses
	CreateStatusPersistence() status.StatusPersistence

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Cleanup releases the resources held by the factory
	Cleanup(ctx context.Context)
}

// NewStorageFactory creates a factory for the configured storage mode and
// connects it
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorage() {
	case config.StorageMongo:
		return NewMongoFactory(ctx, cfg)
	case config.StorageMemory:
		return NewMemoryFactory(cfg), nil
	default:
		return nil, fmt.Errorf("unknown storage mode: %s", cfg.GetStorage())
	}
}

// statusPersistence keeps statuses in dir when set, else in memory
func statusPersistence(dir string) status.StatusPersistence {
	if dir == "" {
		return status.NewMemoryStatusPersistence()
	}
	return status.NewFileStatusPersistence(dir)
}
