package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	storagemocks "github.com/mongoadmin/indexsync/internal/app/storage/mocks"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/search/searchtest"
	"github.com/mongoadmin/indexsync/internal/status"
)

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	require.EqualError(t, err, "config cannot be nil")

	cfg, err := baseConfig(WithConfig(testConfig()))
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, cfg.address)
	assert.Equal(t, defaultRequestTimeout, cfg.requestTimeout)
	assert.Equal(t, defaultWriteTimeout, cfg.writeTimeout)

	_, err = baseConfig(WithConfig(testConfig()), WithAddress(""))
	require.Error(t, err)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{name: "valid address", address: ":9999", want: ":9999"},
		{name: "valid address with host", address: "127.0.0.1:9999", want: "127.0.0.1:9999"},
		{name: "valid address with localhost", address: "localhost:9999", want: "localhost:9999"},
		{name: "invalid empty address", address: "", wantErr: true},
		{name: "invalid empty port", address: ":", wantErr: true},
		{name: "missing port", address: "localhost", wantErr: true},
		{name: "port out of range", address: "localhost:999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &appConfig{}
			err := WithAddress(tt.address)(cfg)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.address)
		})
	}
}

func TestWithRequestTimeout(t *testing.T) {
	t.Parallel()

	cfg := &appConfig{writeTimeout: defaultWriteTimeout}
	require.Error(t, WithRequestTimeout(0)(cfg))

	require.NoError(t, WithRequestTimeout(2*time.Minute)(cfg))
	assert.Equal(t, 2*time.Minute, cfg.requestTimeout)
	assert.Greater(t, cfg.writeTimeout, cfg.requestTimeout, "responses must be writable after the handler deadline")
}

func TestBuildHTTPServer_CustomMiddlewares(t *testing.T) {
	t.Parallel()

	var calls int
	app, _ := createTestApp(t, ":8181", WithMiddlewares(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			next.ServeHTTP(w, r)
		})
	}))
	t.Cleanup(func() { _ = app.Stop(time.Second) })

	server := app.GetHTTPServer()
	assert.Equal(t, ":8181", server.Addr)
	assert.Equal(t, defaultReadTimeout, server.ReadTimeout)
	assert.Equal(t, defaultIdleTimeout, server.IdleTimeout)

	rr := httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, calls)

	// background rebuild is disabled in the test configuration
	rr = httptest.NewRecorder()
	server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/indexes/catalog/status", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRebuildComponents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		interval        string
		wantCoordinator bool
	}{
		{name: "disabled", interval: "0"},
		{name: "enabled", interval: "1h", wantCoordinator: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Indexing.RebuildInterval = tt.interval

			app, err := NewIndexSyncApp(context.Background(),
				WithConfig(cfg),
				WithSearchClient(searchtest.NewEngine()),
				WithLockFactory(lock.NewLocal()),
			)
			require.NoError(t, err)
			t.Cleanup(func() { _ = app.Stop(time.Second) })

			assert.NotNil(t, app.components.StateService)
			assert.Equal(t, tt.wantCoordinator, app.components.RebuildCoordinator != nil)
		})
	}
}

func TestNewIndexSyncApp_LockBackends(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		lock    config.LockConfig
		wantErr string
	}{
		{name: "local", lock: config.LockConfig{Backend: config.LockBackendLocal}},
		{name: "none", lock: config.LockConfig{Backend: config.LockBackendNone}},
		{name: "redis without address", lock: config.LockConfig{Backend: config.LockBackendRedis}, wantErr: "redis address is required"},
		{name: "postgres without database", lock: config.LockConfig{Backend: config.LockBackendPostgres}, wantErr: "database configuration is required"},
		{name: "unknown", lock: config.LockConfig{Backend: "zookeeper"}, wantErr: "unknown lock backend: zookeeper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig()
			cfg.Lock = tt.lock

			app, err := NewIndexSyncApp(context.Background(),
				WithConfig(cfg),
				WithSearchClient(searchtest.NewEngine()),
			)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NoError(t, app.Stop(time.Second))
		})
	}
}

func TestNewIndexSyncApp_CleansUpOnError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().Provider().Return(docstore.NewMemoryProvider())
	factory.EXPECT().Cleanup(gomock.Any())

	cfg := testConfig()
	cfg.Indexes = nil

	_, err := NewIndexSyncApp(context.Background(),
		WithConfig(cfg),
		WithStorageFactory(factory),
		WithSearchClient(searchtest.NewEngine()),
		WithLockFactory(lock.NewLocal()),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one index is required")
}

func TestNewIndexSyncApp_StatusPersistence(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	persistence := status.NewMemoryStatusPersistence()

	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().Provider().Return(docstore.NewMemoryProvider())
	factory.EXPECT().CreateStatusPersistence().Return(persistence)
	factory.EXPECT().Cleanup(gomock.Any())

	cfg := testConfig()
	cfg.Indexing.RebuildInterval = "1h"

	app, err := NewIndexSyncApp(context.Background(),
		WithConfig(cfg),
		WithStorageFactory(factory),
		WithSearchClient(searchtest.NewEngine()),
		WithLockFactory(lock.NewLocal()),
	)
	require.NoError(t, err)

	require.NoError(t, app.components.StateService.Initialize(context.Background(), []string{"catalog"}))
	stored, err := persistence.LoadStatus(context.Background(), "catalog")
	require.NoError(t, err)
	assert.Equal(t, status.SyncPhaseFailed, stored.Phase)
	assert.Equal(t, "1h0m0s", stored.SyncSchedule)

	require.NoError(t, app.Stop(time.Second))
}

func TestNewIndexSyncApp_InvalidSearchURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Elasticsearch.URL = "not a url"

	_, err := NewIndexSyncApp(context.Background(), WithConfig(cfg), WithLockFactory(lock.NewLocal()))
	require.Error(t, err)
	assert.True(t, errors.Unwrap(err) != nil)
	assert.Contains(t, err.Error(), "failed to create search client")
}
