package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mongoadmin/indexsync/internal/api"
	"github.com/mongoadmin/indexsync/internal/app/storage"
	"github.com/mongoadmin/indexsync/internal/clock"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/httpclient"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/indexsync"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/search"
	"github.com/mongoadmin/indexsync/internal/sync/coordinator"
	"github.com/mongoadmin/indexsync/internal/sync/state"
	"github.com/mongoadmin/indexsync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 60 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 75 * time.Second
	defaultIdleTimeout    = 60 * time.Second
)

// AppOption is a function that configures the app builder
type AppOption func(*appConfig) error

// appConfig collects the builder inputs. Component overrides exist for tests.
type appConfig struct {
	config *config.Config

	// Optional component overrides
	storageFactory storage.Factory
	searchClient   httpclient.Client
	lockFactory    lock.Factory
	telemetry      *telemetry.Telemetry

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
}

func baseConfig(opts ...AppOption) (*appConfig, error) {
	cfg := &appConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewIndexSyncApp connects the backends and assembles the application
func NewIndexSyncApp(ctx context.Context, opts ...AppOption) (*IndexSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components := &AppComponents{}

	// Ensure cleanup happens on error
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			components.release(ctx)
		}
	}()

	if err := buildTelemetry(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	if err := buildStorage(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}

	if err := buildOrchestrator(ctx, cfg, components); err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	buildRebuildComponents(ctx, cfg, components)

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// Cleanup is now handled by the app, not in defer
	cleanupNeeded = false

	return &IndexSyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) AppOption {
	return func(cfg *appConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) AppOption {
	return func(cfg *appConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) AppOption {
	return func(cfg *appConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithRequestTimeout bounds the handling of one request, rebuilds included
func WithRequestTimeout(d time.Duration) AppOption {
	return func(cfg *appConfig) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive")
		}
		cfg.requestTimeout = d
		if cfg.writeTimeout < d {
			cfg.writeTimeout = d + 15*time.Second
		}
		return nil
	}
}

// WithStorageFactory allows injecting a custom storage factory (for testing)
func WithStorageFactory(f storage.Factory) AppOption {
	return func(cfg *appConfig) error {
		cfg.storageFactory = f
		return nil
	}
}

// WithSearchClient allows injecting the transport to the search engine (for testing)
func WithSearchClient(c httpclient.Client) AppOption {
	return func(cfg *appConfig) error {
		cfg.searchClient = c
		return nil
	}
}

// WithLockFactory allows injecting a lock backend (for testing)
func WithLockFactory(f lock.Factory) AppOption {
	return func(cfg *appConfig) error {
		cfg.lockFactory = f
		return nil
	}
}

// WithTelemetry uses already initialized providers instead of creating them
// from the configuration
func WithTelemetry(t *telemetry.Telemetry) AppOption {
	return func(cfg *appConfig) error {
		cfg.telemetry = t
		return nil
	}
}

func buildTelemetry(ctx context.Context, b *appConfig, c *AppComponents) error {
	if b.telemetry != nil {
		c.Telemetry = b.telemetry
		return nil
	}
	t, err := telemetry.New(ctx, b.config.Telemetry)
	if err != nil {
		return err
	}
	c.Telemetry = t
	return nil
}

func buildStorage(ctx context.Context, b *appConfig, c *AppComponents) error {
	if b.storageFactory != nil {
		c.Storage = b.storageFactory
		return nil
	}
	f, err := storage.NewStorageFactory(ctx, b.config)
	if err != nil {
		return err
	}
	c.Storage = f
	return nil
}

func buildSearchClient(b *appConfig) (httpclient.Client, error) {
	if b.searchClient != nil {
		return b.searchClient, nil
	}

	es := b.config.Elasticsearch
	var opts []httpclient.Option
	if es.Username != "" {
		password, err := es.GetPassword()
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpclient.WithBasicAuth(es.Username, password))
	}
	return httpclient.NewDefaultClient(es.URL, es.GetTimeout(), opts...)
}

// buildOrchestrator wires the search writer, the lock policy and the index
// queue around the document storage
func buildOrchestrator(ctx context.Context, b *appConfig, c *AppComponents) error {
	slog.InfoContext(ctx, "Initializing indexing components")

	client, err := buildSearchClient(b)
	if err != nil {
		return fmt.Errorf("failed to create search client: %w", err)
	}

	locks := b.lockFactory
	if locks == nil {
		backend, err := buildLockBackend(ctx, b.config)
		if err != nil {
			return fmt.Errorf("failed to create lock backend: %w", err)
		}
		c.locks = backend
		locks = backend.factory
	}

	metrics, err := telemetry.NewIndexMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create index metrics: %w", err)
	}

	lockCfg := b.config.Lock
	locker := lock.NewLocker(locks,
		lock.WithContinueOnFailure(lockCfg.GetContinueOnFailure()),
		lock.WithDegradedHook(func(key string, _ error) {
			metrics.RecordLockDegraded(context.Background(), lock.IndexOf(key))
		}),
	)

	provider := c.Storage.Provider()
	orchestrator, err := indexsync.New(
		provider,
		search.NewWriter(client),
		b.config.Indexes,
		indexsync.WithLocker(locker),
		indexsync.WithQueue(indexqueue.NewRegistry(provider, clock.Real{})),
		indexsync.WithLockTimeouts(lockCfg.GetWaitTimeout(), lockCfg.GetHoldTimeout()),
		indexsync.WithWorkers(b.config.Indexing.GetWorkers()),
		indexsync.WithMetrics(metrics),
		indexsync.WithTracer(c.Telemetry.Tracer(indexsync.TracerName)),
	)
	if err != nil {
		return err
	}
	c.Orchestrator = orchestrator

	slog.InfoContext(ctx, "Indexing components initialized",
		"indexes", len(b.config.Indexes),
		"workers", b.config.Indexing.GetWorkers(),
		"lock_backend", lockCfg.GetBackend())
	return nil
}

// buildRebuildComponents creates the state service and, unless disabled, the
// background rebuild coordinator
func buildRebuildComponents(ctx context.Context, b *appConfig, c *AppComponents) {
	interval := b.config.Indexing.GetRebuildInterval()
	c.StateService = state.NewStateService(c.Storage.CreateStatusPersistence(), interval)

	if interval <= 0 {
		slog.InfoContext(ctx, "Background rebuild disabled")
		return
	}

	c.RebuildCoordinator = coordinator.New(
		c.Orchestrator,
		c.StateService,
		b.config.IndexNames(),
		interval,
		coordinator.WithMaxDocs(b.config.Indexing.RebuildMaxDocs),
	)
	slog.InfoContext(ctx, "Background rebuild enabled", "interval", interval)
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(ctx context.Context, b *appConfig, c *AppComponents) (*http.Server, error) {
	slog.InfoContext(ctx, "Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	httpMetrics, err := telemetry.NewHTTPMetrics(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	// tracing and metrics wrap everything so rejected requests are measured too
	middlewares := append([]func(http.Handler) http.Handler{
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
		httpMetrics.Middleware,
	}, b.middlewares...)

	serverOpts := []api.ServerOption{
		api.WithMiddlewares(middlewares...),
		api.WithSyncStatuses(c.StateService),
	}
	if h := c.Telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}
	router := api.NewServer(c.Orchestrator, serverOpts...)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.InfoContext(ctx, "HTTP server configured", "address", b.address)
	return server, nil
}
