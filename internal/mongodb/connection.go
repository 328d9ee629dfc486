// Package mongodb connects tracked document collections to a MongoDB deployment.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
)

// State is the lifecycle position of a Connection
type State string

const (
	// StateDisconnected means no client has been established yet
	StateDisconnected State = "Disconnected"
	// StateConnecting means a connection attempt is in progress
	StateConnecting State = "Connecting"
	// StateConnected means the client is usable
	StateConnected State = "Connected"
	// StateClosed is terminal
	StateClosed State = "Closed"
)

// ErrClosed is returned by every operation on a closed connection
var ErrClosed = errors.New("mongodb connection is closed")

// Connection owns a MongoDB client and hands out collections
type Connection struct {
	mu     sync.RWMutex
	state  State
	client *mongo.Client

	uri            string
	appName        string
	connectTimeout time.Duration
	maxAttempts    int
}

// NewConnection creates a disconnected connection from the provided configuration
func NewConnection(cfg *config.MongoConfig) (*Connection, error) {
	uri := cfg.GetURI()
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required: set mongo.uri or %s_MONGO_URI", config.EnvPrefix)
	}

	c := &Connection{
		state:          StateDisconnected,
		uri:            uri,
		connectTimeout: cfg.GetConnectTimeout(),
		maxAttempts:    cfg.GetMaxConnectAttempts(),
	}
	if cfg != nil {
		c.appName = cfg.AppName
	}
	return c, nil
}

// State returns the current lifecycle state
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect establishes the client, retrying with exponential backoff. Calling
// Connect on a connected client is a no-op.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return fmt.Errorf("mongodb connection attempt already in progress")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	attempt := 0
	client, err := backoff.Retry(ctx, func() (*mongo.Client, error) {
		attempt++
		return c.dial(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("MongoDB connection attempt failed",
				"attempt", attempt,
				"retry_in", next,
				"error", err)
		}),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		return fmt.Errorf("failed to connect to mongodb: %w", errors.Join(docstore.ErrUnavailable, err))
	}
	if c.state == StateClosed {
		// Close won the race while dialing
		_ = client.Disconnect(context.Background())
		return ErrClosed
	}
	c.client = client
	c.state = StateConnected
	slog.Info("MongoDB connection established", "attempts", attempt)
	return nil
}

func (c *Connection) dial(ctx context.Context) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(c.uri).
		SetConnectTimeout(c.connectTimeout).
		SetServerSelectionTimeout(c.connectTimeout)
	if c.appName != "" {
		opts.SetAppName(c.appName)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Ping verifies the deployment is reachable
func (c *Connection) Ping(ctx context.Context) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return translate(err)
	}
	return nil
}

// Close disconnects the client. Closed is terminal.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	if c.client == nil {
		return nil
	}
	slog.Info("Closing MongoDB connection")
	err := c.client.Disconnect(ctx)
	c.client = nil
	return err
}

// Collection implements docstore.Provider
func (c *Connection) Collection(database, collection string) (docstore.Collection, error) {
	client, err := c.getClient()
	if err != nil {
		return nil, err
	}
	return &Collection{coll: client.Database(database).Collection(collection)}, nil
}

func (c *Connection) getClient() (*mongo.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateConnected:
		return c.client, nil
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("mongodb is %s: %w", c.state, docstore.ErrUnavailable)
	}
}
