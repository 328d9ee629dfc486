package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/mongodb"
	"github.com/mongoadmin/indexsync/internal/status"
)

// MongoFactory creates MongoDB-backed components
type MongoFactory struct {
	config *config.Config
	conn   *mongodb.Connection
}

var _ Factory = (*MongoFactory)(nil)

// NewMongoFactory connects to the configured deployment. Connection attempts
// are retried with backoff before giving up.
func NewMongoFactory(ctx context.Context, cfg *config.Config) (*MongoFactory, error) {
	conn, err := mongodb.NewConnection(cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mongodb connection: %w", err)
	}

	slog.InfoContext(ctx, "Creating MongoDB-backed storage factory")
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	return &MongoFactory{config: cfg, conn: conn}, nil
}

// Provider implements Factory.Provider
func (m *MongoFactory) Provider() docstore.Provider {
	return m.conn
}

// CreateStatusPersistence implements Factory.CreateStatusPersistence
func (m *MongoFactory) CreateStatusPersistence() status.StatusPersistence {
	return statusPersistence(m.config.Indexing.StatusDir)
}

// Ping implements Factory.Ping
func (m *MongoFactory) Ping(ctx context.Context) error {
	return m.conn.Ping(ctx)
}

// Cleanup closes the client
func (m *MongoFactory) Cleanup(ctx context.Context) {
	if err := m.conn.Close(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed to close mongodb connection", "error", err)
	}
}
