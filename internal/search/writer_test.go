package search_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"github.com/mongoadmin/indexsync/internal/flatten"
	"github.com/mongoadmin/indexsync/internal/httpclient"
	"github.com/mongoadmin/indexsync/internal/httpclient/mocks"
	"github.com/mongoadmin/indexsync/internal/search"
	"github.com/mongoadmin/indexsync/internal/search/searchtest"
)

const testIndex = "catalog"

var shop = search.Source{DBName: "shop", CollName: "products"}

func newWriter(t *testing.T) (*search.Writer, *searchtest.Engine) {
	t.Helper()
	engine := searchtest.NewEngine()
	w := search.NewWriter(engine)
	require.NoError(t, w.CreateIndex(context.Background(), testIndex))
	return w, engine
}

func upsertReq(id string, version int64, pairs ...flatten.Pair) search.UpsertRequest {
	return search.UpsertRequest{
		Index:            testIndex,
		CustomID:         id,
		Source:           shop,
		Flat:             pairs,
		UpdateVersion:    version,
		UpdateAt:         1_700_000_000_000 + version,
		UpdateAtTimeZone: 8,
	}
}

func TestCreateIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	// a second create leaves the index alone
	require.NoError(t, w.CreateIndex(ctx, testIndex))

	mapping := engine.Mapping(testIndex)
	assert.Equal(t, "pattern", gjson.GetBytes(mapping, "settings.analysis.tokenizer.char_tokenizer.type").String())
	assert.Equal(t, "", gjson.GetBytes(mapping, "settings.analysis.tokenizer.char_tokenizer.pattern").String())
	assert.Equal(t, "nested", gjson.GetBytes(mapping, "mappings.properties.flat.type").String())
	assert.Equal(t, "char_analyzer", gjson.GetBytes(mapping, "mappings.properties.flat.properties.value.analyzer").String())
}

func TestRecreateIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	_, err := w.Upsert(ctx, upsertReq("x1", 1))
	require.NoError(t, err)
	require.Equal(t, 1, engine.Len(testIndex))

	require.NoError(t, w.RecreateIndex(ctx, testIndex))
	assert.True(t, engine.HasIndex(testIndex))
	assert.Equal(t, 0, engine.Len(testIndex))

	require.NoError(t, w.DeleteIndex(ctx, testIndex))
	require.NoError(t, w.DeleteIndex(ctx, testIndex), "deleting a missing index is not an error")
	assert.False(t, engine.HasIndex(testIndex))
}

func TestUpsert_Versions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)
	name := flatten.Pair{Path: "name", Value: "alpha"}

	outcome, err := w.Upsert(ctx, upsertReq("x1", 2, name))
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeWritten, outcome)
	assert.Equal(t, "create", engine.Requests()[len(engine.Requests())-1].Query.Get("op_type"))

	// same version again does not write
	puts := engine.CountRequests(http.MethodPut, "/_doc/")
	outcome, err = w.Upsert(ctx, upsertReq("x1", 2, name))
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeCurrent, outcome)
	assert.Equal(t, puts, engine.CountRequests(http.MethodPut, "/_doc/"))

	// older version never replaces a newer one
	outcome, err = w.Upsert(ctx, upsertReq("x1", 1, flatten.Pair{Path: "name", Value: "stale"}))
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeStale, outcome)
	doc, ok := engine.Document(testIndex, "x1")
	require.True(t, ok)
	assert.Equal(t, int64(2), doc.UpdateVersion)
	assert.Equal(t, []flatten.Pair{name}, doc.Flat)

	outcome, err = w.Upsert(ctx, upsertReq("x1", 3, flatten.Pair{Path: "name", Value: "beta"}))
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeWritten, outcome)
	doc, _ = engine.Document(testIndex, "x1")
	assert.Equal(t, int64(3), doc.UpdateVersion)
	assert.Equal(t, "beta", doc.Flat[0].Value)
	assert.Equal(t, shop, doc.Source)
	assert.Equal(t, int64(8), doc.UpdateAtTimeZone)

	stored, err := w.Get(ctx, testIndex, "x1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.UpdateVersion)
	assert.Equal(t, shop, stored.Source)
}

func TestUpsert_EmptyContentStoresEmptyList(t *testing.T) {
	t.Parallel()
	w, engine := newWriter(t)

	_, err := w.Upsert(context.Background(), upsertReq("empty", 1))
	require.NoError(t, err)
	doc, ok := engine.Document(testIndex, "empty")
	require.True(t, ok)
	assert.Empty(t, doc.Flat)
	assert.NotNil(t, doc.Flat)
}

func TestUpsert_ForceReindex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	_, err := w.Upsert(ctx, upsertReq("x1", 5))
	require.NoError(t, err)
	gets := engine.CountRequests(http.MethodGet, "/_doc/")

	req := upsertReq("x1", 4, flatten.Pair{Path: "name", Value: "rebuilt"})
	req.ForceReindex = true
	outcome, err := w.Upsert(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeWritten, outcome)
	assert.Equal(t, gets, engine.CountRequests(http.MethodGet, "/_doc/"), "forced writes skip the version read")

	doc, _ := engine.Document(testIndex, "x1")
	assert.Equal(t, int64(4), doc.UpdateVersion)
}

func TestUpsert_RacingWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	_, err := w.Upsert(ctx, upsertReq("x1", 1))
	require.NoError(t, err)

	var once sync.Once
	engine.SetBeforeWrite(func(*httpclient.Request) {
		once.Do(func() {
			engine.Put(testIndex, "x1", search.Document{UpdateVersion: 7, Source: shop, Flat: []flatten.Pair{}})
		})
	})

	_, err = w.Upsert(ctx, upsertReq("x1", 2))
	require.ErrorIs(t, err, search.ErrVersionConflict)

	doc, _ := engine.Document(testIndex, "x1")
	assert.Equal(t, int64(7), doc.UpdateVersion)
}

func TestUpsert_ConcurrentCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	var once sync.Once
	engine.SetBeforeWrite(func(*httpclient.Request) {
		once.Do(func() {
			engine.Put(testIndex, "x1", search.Document{UpdateVersion: 1, Source: shop, Flat: []flatten.Pair{}})
		})
	})

	_, err := w.Upsert(ctx, upsertReq("x1", 1))
	require.ErrorIs(t, err, search.ErrVersionConflict)
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name          string
		storedVersion int64
		deleteVersion int64
		race          bool
		want          search.Outcome
		wantRemaining bool
	}{
		{name: "missing document", deleteVersion: 1, want: search.OutcomeNotFound},
		{name: "same version", storedVersion: 3, deleteVersion: 3, want: search.OutcomeDeleted},
		{name: "older indexed version", storedVersion: 2, deleteVersion: 3, want: search.OutcomeDeleted},
		{name: "index is newer", storedVersion: 4, deleteVersion: 3, want: search.OutcomeStale, wantRemaining: true},
		{name: "concurrent rewrite", storedVersion: 3, deleteVersion: 3, race: true, want: search.OutcomeConflict, wantRemaining: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, engine := newWriter(t)
			if tt.storedVersion > 0 {
				engine.Put(testIndex, "x1", search.Document{UpdateVersion: tt.storedVersion, Source: shop, Flat: []flatten.Pair{}})
			}
			if tt.race {
				engine.SetBeforeWrite(func(*httpclient.Request) {
					engine.Put(testIndex, "x1", search.Document{UpdateVersion: tt.storedVersion + 1, Source: shop, Flat: []flatten.Pair{}})
				})
			}

			outcome, err := w.Delete(ctx, testIndex, "x1", tt.deleteVersion)
			require.NoError(t, err)
			assert.Equal(t, tt.want, outcome)

			exists, err := w.Exists(ctx, testIndex, "x1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemaining, exists)
		})
	}
}

func TestDelete_MissingIndex(t *testing.T) {
	t.Parallel()
	w := search.NewWriter(searchtest.NewEngine())

	outcome, err := w.Delete(context.Background(), "nowhere", "x1", 1)
	require.NoError(t, err)
	assert.Equal(t, search.OutcomeNotFound, outcome)
}

func TestCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	engine.Put(testIndex, "a", search.Document{Source: shop, Flat: []flatten.Pair{}})
	engine.Put(testIndex, "b", search.Document{Source: shop, Flat: []flatten.Pair{}})
	engine.Put(testIndex, "c", search.Document{Source: search.Source{DBName: "shop", CollName: "orders"}, Flat: []flatten.Pair{}})

	total, err := w.Count(ctx, testIndex, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	products, err := w.Count(ctx, testIndex, &shop)
	require.NoError(t, err)
	assert.Equal(t, int64(2), products)

	_, err = w.Count(ctx, "nowhere", nil)
	assert.ErrorIs(t, err, search.ErrIndexNotFound)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, engine := newWriter(t)

	orders := search.Source{DBName: "shop", CollName: "orders"}
	engine.Put(testIndex, "x1", search.Document{
		UpdateVersion: 2,
		Source:        shop,
		Flat: []flatten.Pair{
			{Path: "name", Value: "Alpha Banana"},
			{Path: "tags@0", Value: "fruit"},
		},
	})
	engine.Put(testIndex, "x2", search.Document{
		UpdateVersion: 1,
		Source:        orders,
		Flat:          []flatten.Pair{{Path: "note", Value: "alphabet"}},
	})
	engine.Put(testIndex, "x3", search.Document{
		Source: shop,
		Flat:   []flatten.Pair{{Path: "name", Value: "gamma"}},
	})

	t.Run("matches values case insensitively", func(t *testing.T) {
		t.Parallel()
		res, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "ALPH"})
		require.NoError(t, err)
		require.Equal(t, int64(2), res.Total)
		require.Len(t, res.Hits, 2)
		assert.Equal(t, "x1", res.Hits[0].ID)
		assert.Equal(t, int64(2), res.Hits[0].UpdateVersion)
		assert.Equal(t, shop, res.Hits[0].Source)
		assert.Equal(t, []search.Match{{
			Path:    "name",
			Value:   "Alpha Banana",
			Field:   search.FieldValue,
			Offsets: []search.Offset{{0, 4}},
		}}, res.Hits[0].Matches)
		assert.Equal(t, search.DefaultPageSize, res.PageSize)
	})

	t.Run("adjacent repeats stay separate ranges", func(t *testing.T) {
		t.Parallel()
		res, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "an"})
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, []search.Offset{{7, 9}, {9, 11}}, res.Hits[0].Matches[0].Offsets)
	})

	t.Run("matches paths", func(t *testing.T) {
		t.Parallel()
		res, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "tags", Fields: []string{search.FieldPath}})
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, search.FieldPath, res.Hits[0].Matches[0].Field)
		assert.Equal(t, []search.Offset{{0, 4}}, res.Hits[0].Matches[0].Offsets)
	})

	t.Run("filters by source", func(t *testing.T) {
		t.Parallel()
		res, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "alph", Source: &orders})
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, "x2", res.Hits[0].ID)
	})

	t.Run("pages", func(t *testing.T) {
		t.Parallel()
		res, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "a", Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Total)
		assert.Len(t, res.Hits, 1)
		assert.Equal(t, 1, res.Page)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()
		_, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "a", Fields: []string{"content"}})
		require.ErrorIs(t, err, search.ErrInvalidQuery)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		t.Parallel()
		_, err := w.Search(ctx, testIndex, search.SearchRequest{Query: "  "})
		require.ErrorIs(t, err, search.ErrInvalidQuery)
	})
}

func TestWriter_TransportErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name    string
		resp    *httpclient.Response
		err     error
		wantErr error
	}{
		{name: "network failure", err: errors.New("connection refused"), wantErr: search.ErrUnavailable},
		{name: "server error", resp: &httpclient.Response{StatusCode: http.StatusServiceUnavailable}, wantErr: search.ErrUnavailable},
		{name: "throttled", resp: &httpclient.Response{StatusCode: http.StatusTooManyRequests}, wantErr: search.ErrUnavailable},
		{
			name: "missing index",
			resp: &httpclient.Response{
				StatusCode: http.StatusNotFound,
				Body:       []byte(`{"error":{"type":"index_not_found_exception"},"status":404}`),
			},
			wantErr: search.ErrIndexNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			client := mocks.NewMockClient(ctrl)
			client.EXPECT().Do(gomock.Any(), gomock.Any()).Return(tt.resp, tt.err)

			_, err := search.NewWriter(client).Upsert(ctx, upsertReq("x1", 1))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriter_CancelledContext(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, context.Canceled)

	err := search.NewWriter(client).Ping(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, search.ErrUnavailable)
}
