package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mongoadmin/indexsync/internal/docstore"
)

// Collection adapts a driver collection to docstore.Collection
type Collection struct {
	coll *mongo.Collection
}

var _ docstore.Collection = (*Collection)(nil)

// FindOne returns the first document matching filter
func (c *Collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	var doc bson.M
	if err := c.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translate(err)
	}
	return doc, nil
}

// UpdateOne applies update to the first document matching filter
func (c *Collection) UpdateOne(ctx context.Context, filter bson.M, update bson.M) (docstore.UpdateResult, error) {
	res, err := c.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return docstore.UpdateResult{}, translate(err)
	}
	return docstore.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

// InsertOne stores doc and returns its _id
func (c *Collection) InsertOne(ctx context.Context, doc bson.M) (any, error) {
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, translate(err)
	}
	return res.InsertedID, nil
}

// DeleteOne removes the first document matching filter
func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return 0, translate(err)
	}
	return res.DeletedCount, nil
}

// CreateIndex creates a named index over keys
func (c *Collection) CreateIndex(ctx context.Context, keys bson.D, name string) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetName(name),
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", name, translate(err))
	}
	return nil
}

// ListIndexNames returns the names of all indexes on the collection
func (c *Collection) ListIndexNames(ctx context.Context) ([]string, error) {
	specs, err := c.coll.Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, translate(err)
	}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name)
	}
	return names, nil
}

// Count returns the number of documents matching filter
func (c *Collection) Count(ctx context.Context, filter bson.M) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// Scan iterates a cursor over the documents matching filter
func (c *Collection) Scan(ctx context.Context, filter bson.M, limit int64, fn func(bson.M) error) error {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return translate(err)
	}
	defer func() {
		_ = cursor.Close(context.Background())
	}()

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return translate(cursor.Err())
}

// translate maps driver errors onto the docstore sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.ErrNoDocument
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(docstore.ErrDuplicateKey, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return errors.Join(docstore.ErrUnavailable, err)
	default:
		return err
	}
}
