package indexqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mongoadmin/indexsync/internal/clock"
	"github.com/mongoadmin/indexsync/internal/docstore"
)

const testNow int64 = 1_700_000_000_000

func newTestRegistry(t *testing.T) (*Registry, *docstore.MemoryProvider, *clock.Fixed) {
	t.Helper()
	provider := docstore.NewMemoryProvider()
	clk := clock.NewFixed(testNow, 8)
	return NewRegistry(provider, clk), provider, clk
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, provider, clk := newTestRegistry(t)

	oid := primitive.NewObjectID()
	_, err := provider.Memory("shop", "products").InsertOne(ctx, bson.M{
		"_id":           oid,
		"content":       bson.M{"customId": "x1"},
		"updateVersion": int64(3),
		"indexVersion":  int64(2),
	})
	require.NoError(t, err)

	entry, err := reg.GetOrCreate(ctx, "shop", "products", "x1", oid)
	require.NoError(t, err)
	assert.Equal(t, &Entry{
		CustomID:         "x1",
		Collection:       "products",
		StorageID:        oid,
		Status:           StatusPending,
		UpdateVersion:    3,
		IndexVersion:     2,
		CreateAt:         testNow,
		CreateAtTimeZone: 8,
		UpdateAt:         testNow,
		UpdateAtTimeZone: 8,
	}, entry)

	// the second call returns the stored entry unchanged
	clk.Advance(time.Minute)
	again, err := reg.GetOrCreate(ctx, "shop", "products", "x1", oid)
	require.NoError(t, err)
	assert.Equal(t, testNow, again.CreateAt)
	assert.Equal(t, oid, again.StorageID)

	n, err := provider.Memory("shop", CollectionName).Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGetOrCreate_NotFound(t *testing.T) {
	t.Parallel()
	reg, _, _ := newTestRegistry(t)

	_, err := reg.GetOrCreate(context.Background(), "shop", "products", "ghost", "missing-id")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = reg.Get(context.Background(), "shop", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _, clk := newTestRegistry(t)

	doc := &docstore.Document{
		ID:                "s1",
		Content:           bson.M{"customId": "x1"},
		UpdateVersion:     1,
		ShouldUpdateIndex: true,
		IndexAt:           docstore.Unknown,
	}
	require.NoError(t, reg.Record(ctx, "shop", "products", doc))

	entry, err := reg.Get(ctx, "shop", "x1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, int64(1), entry.UpdateVersion)
	assert.Equal(t, testNow, entry.CreateAt)

	clk.Advance(time.Second)
	doc.IndexVersion, doc.ShouldUpdateIndex, doc.IndexAt = 1, false, testNow
	require.NoError(t, reg.Record(ctx, "shop", "products", doc))

	entry, err = reg.Get(ctx, "shop", "x1")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, entry.Status)
	assert.Equal(t, int64(1), entry.IndexVersion)
	assert.Equal(t, testNow, entry.CreateAt, "creation time is kept")
	assert.Equal(t, testNow+1000, entry.UpdateAt)
}

func TestRecord_WithoutCustomID(t *testing.T) {
	t.Parallel()
	reg, provider, _ := newTestRegistry(t)

	require.NoError(t, reg.Record(context.Background(), "shop", "products", &docstore.Document{ID: "s1", Content: bson.M{}}))
	n, err := provider.Memory("shop", CollectionName).Count(context.Background(), bson.M{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecord_StaleVersionIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, provider, clk := newTestRegistry(t)

	newer := &docstore.Document{
		ID:                "s1",
		Content:           bson.M{"customId": "x1"},
		UpdateVersion:     3,
		IndexVersion:      2,
		ShouldUpdateIndex: true,
		IndexAt:           docstore.Unknown,
	}
	require.NoError(t, reg.Record(ctx, "shop", "products", newer))

	clk.Advance(time.Second)
	stale := &docstore.Document{
		ID:            "s1",
		Content:       bson.M{"customId": "x1"},
		UpdateVersion: 2,
		IndexVersion:  2,
		IndexAt:       testNow,
	}
	require.NoError(t, reg.Record(ctx, "shop", "products", stale))

	entry, err := reg.Get(ctx, "shop", "x1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), entry.UpdateVersion)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, testNow, entry.UpdateAt, "stale write must not touch the entry")

	n, err := provider.Memory("shop", CollectionName).Count(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// an equal version still refreshes the entry
	newer.IndexVersion, newer.ShouldUpdateIndex, newer.IndexAt = 3, false, testNow
	require.NoError(t, reg.Record(ctx, "shop", "products", newer))
	entry, err = reg.Get(ctx, "shop", "x1")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, entry.Status)
	assert.Equal(t, testNow+1000, entry.UpdateAt)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  docstore.Document
		want Status
	}{
		{name: "untracked", doc: docstore.Document{IndexAt: docstore.Unknown}, want: StatusPending},
		{name: "pending", doc: docstore.Document{UpdateVersion: 2, IndexVersion: 1, ShouldUpdateIndex: true}, want: StatusPending},
		{name: "synced", doc: docstore.Document{UpdateVersion: 2, IndexVersion: 2, IndexAt: testNow}, want: StatusIndexed},
		{name: "soft deleted", doc: docstore.Document{UpdateVersion: 3, IsDeleted: true}, want: StatusDeleting},
		{name: "purged", doc: docstore.Document{UpdateVersion: 3, IsDeleted: true, IsIndexDeleted: true}, want: StatusPurged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusOf(&tt.doc))
		})
	}
}

func TestEnsureCompoundIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, provider, _ := newTestRegistry(t)

	require.NoError(t, reg.EnsureCompoundIndex(ctx, "shop"))
	require.NoError(t, reg.EnsureCompoundIndex(ctx, "shop"))

	names, err := provider.Memory("shop", CollectionName).ListIndexNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"_id_", CompoundIndexName}, names)
}

func TestCountByStatusAndPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	docs := []*docstore.Document{
		{ID: "1", Content: bson.M{"customId": "a"}, UpdateVersion: 1, ShouldUpdateIndex: true},
		{ID: "2", Content: bson.M{"customId": "b"}, UpdateVersion: 1, IndexVersion: 1, IndexAt: testNow},
		{ID: "3", Content: bson.M{"customId": "c"}, UpdateVersion: 2, IsDeleted: true},
		{ID: "4", Content: bson.M{"customId": "d"}, UpdateVersion: 2, IndexVersion: 2, IndexAt: testNow},
	}
	for _, d := range docs {
		require.NoError(t, reg.Record(ctx, "shop", "products", d))
	}

	counts, err := reg.CountByStatus(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, map[Status]int64{
		StatusPending:  1,
		StatusIndexed:  2,
		StatusDeleting: 1,
		StatusPurged:   0,
	}, counts)

	var pending []string
	require.NoError(t, reg.Pending(ctx, "shop", 0, func(e *Entry) error {
		pending = append(pending, e.CustomID)
		return nil
	}))
	assert.ElementsMatch(t, []string{"a", "c"}, pending)
}
