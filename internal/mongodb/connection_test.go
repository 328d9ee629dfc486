package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mongoadmin/indexsync/internal/clock"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/testutil"
)

func TestNewConnection_RequiresURI(t *testing.T) {
	t.Parallel()

	_, err := NewConnection(&config.MongoConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo uri is required")
}

func TestConnection_Lifecycle(t *testing.T) {
	t.Parallel()

	conn, err := NewConnection(&config.MongoConfig{URI: "mongodb://localhost:1"})
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, conn.State())

	_, err = conn.Collection("db", "coll")
	assert.ErrorIs(t, err, docstore.ErrUnavailable)

	require.NoError(t, conn.Close(context.Background()))
	assert.Equal(t, StateClosed, conn.State())

	assert.ErrorIs(t, conn.Connect(context.Background()), ErrClosed)
	_, err = conn.Collection("db", "coll")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, conn.Ping(context.Background()), ErrClosed)
}

func TestConnection_ConnectGivesUp(t *testing.T) {
	t.Parallel()

	conn, err := NewConnection(&config.MongoConfig{
		URI:                "mongodb://127.0.0.1:1/?directConnection=true",
		ConnectTimeout:     "100ms",
		MaxConnectAttempts: 2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = conn.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, docstore.ErrUnavailable)
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestTranslate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(mongo.ErrNoDocuments), docstore.ErrNoDocument)
	assert.ErrorIs(t, translate(mongo.ErrClientDisconnected), docstore.ErrUnavailable)

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, translate(dup), docstore.ErrDuplicateKey)

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestStoreAgainstMongo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	uri := testutil.SetupMongo(t)
	ctx := context.Background()

	conn, err := NewConnection(&config.MongoConfig{URI: uri})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	require.NoError(t, conn.Ping(ctx))

	coll, err := conn.Collection("shop", "products")
	require.NoError(t, err)

	oid := primitive.NewObjectID()
	_, err = coll.InsertOne(ctx, bson.M{"_id": oid, "content": bson.M{"customId": "x1"}})
	require.NoError(t, err)
	_, err = coll.InsertOne(ctx, bson.M{"_id": oid})
	assert.ErrorIs(t, err, docstore.ErrDuplicateKey)

	store := docstore.NewStore(coll, clock.NewFixed(1000, 0))
	require.NoError(t, store.EnsurePendingIndex(ctx))
	names, err := coll.ListIndexNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, docstore.PendingIndexName)

	doc, err := store.Get(ctx, oid.Hex())
	require.NoError(t, err)
	doc, err = store.BumpVersion(ctx, doc, map[string]any{"name": "alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.UpdateVersion)
	assert.Equal(t, "alpha", doc.Content["name"])

	ok, err := store.MarkIndexed(ctx, doc.ID, 1, doc.UpdateAt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkIndexed(ctx, doc.ID, 1, doc.UpdateAt)
	require.NoError(t, err)
	assert.False(t, ok)

	var pending int
	require.NoError(t, store.Scan(ctx, true, 0, func(*docstore.Document) error {
		pending++
		return nil
	}))
	assert.Zero(t, pending)

	doc, err = store.MarkDeleted(ctx, doc)
	require.NoError(t, err)
	ok, err = store.MarkIndexDeleted(ctx, doc.ID, doc.UpdateVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	purged, err := store.Purge(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, purged)

	_, err = store.Get(ctx, oid.Hex())
	assert.ErrorIs(t, err, docstore.ErrNoDocument)
}
