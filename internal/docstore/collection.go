// Package docstore tracks version metadata on mutable documents held in a
// document collection.
//
// The package talks to storage only through the Collection interface, whose
// filter and update arguments use MongoDB query syntax. Every write is a single
// document atomic operation; no multi-document transactions are required.
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNoDocument is returned when a filter matches no document
	ErrNoDocument = errors.New("document not found")

	// ErrDuplicateKey is returned when an insert collides with an existing _id
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnavailable is returned when the storage backend cannot be reached
	ErrUnavailable = errors.New("storage backend unavailable")
)

// UpdateResult reports how many documents an update matched and modified.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Collection is the narrow view of a document collection used by the store.
//
//go:generate mockgen -destination=mocks/mock_collection.go -package=mocks -source=collection.go Collection,Provider
type Collection interface {
	// FindOne returns the first document matching filter, or ErrNoDocument.
	FindOne(ctx context.Context, filter bson.M) (bson.M, error)
	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, filter bson.M, update bson.M) (UpdateResult, error)
	// InsertOne stores doc and returns its _id.
	InsertOne(ctx context.Context, doc bson.M) (any, error)
	// DeleteOne removes the first document matching filter and returns the number removed.
	DeleteOne(ctx context.Context, filter bson.M) (int64, error)
	// CreateIndex creates a named index over keys.
	CreateIndex(ctx context.Context, keys bson.D, name string) error
	// ListIndexNames returns the names of all indexes on the collection.
	ListIndexNames(ctx context.Context) ([]string, error)
	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter bson.M) (int64, error)
	// Scan calls fn for each document matching filter, up to limit documents
	// when limit is positive. Scanning stops at the first error returned by fn.
	Scan(ctx context.Context, filter bson.M, limit int64, fn func(bson.M) error) error
}

// Provider hands out collections by database and collection name.
type Provider interface {
	Collection(database, collection string) (Collection, error)
}
