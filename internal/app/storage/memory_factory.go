package storage

import (
	"context"
	"log/slog"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/status"
)

// MemoryFactory creates components living in process memory. Everything is
// lost on restart unless indexing.statusDir is set, which keeps statuses only.
type MemoryFactory struct {
	config   *config.Config
	provider *docstore.MemoryProvider
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates an empty in-memory storage
func NewMemoryFactory(cfg *config.Config) *MemoryFactory {
	slog.Warn("Using in-memory storage; tracked documents are lost on restart")
	return &MemoryFactory{config: cfg, provider: docstore.NewMemoryProvider()}
}

// Provider implements Factory.Provider
func (m *MemoryFactory) Provider() docstore.Provider {
	return m.provider
}

// CreateStatusPersistence implements Factory.CreateStatusPersistence
func (m *MemoryFactory) CreateStatusPersistence() status.StatusPersistence {
	return statusPersistence(m.config.Indexing.StatusDir)
}

// Ping implements Factory.Ping
func (*MemoryFactory) Ping(context.Context) error {
	return nil
}

// Cleanup implements Factory.Cleanup
func (*MemoryFactory) Cleanup(context.Context) {}
