// Package app provides application lifecycle management for the index sync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/indexsync"
)

// IndexSyncApp encapsulates all components needed to run the API server.
// It provides lifecycle management and graceful shutdown capabilities.
type IndexSyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the application components (HTTP server and background rebuilds).
// This method blocks until the HTTP server stops or encounters an error.
func (app *IndexSyncApp) Start() error {
	app.components.Orchestrator.Prepare(app.ctx)

	if app.components.RebuildCoordinator != nil {
		go func() {
			if err := app.components.RebuildCoordinator.Start(app.ctx); err != nil {
				slog.Error("Rebuild coordinator failed", "error", err)
			}
		}()
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout. Requests are
// drained first, then indexing jobs, then the backends are released.
func (app *IndexSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if app.components.RebuildCoordinator != nil {
		if err := app.components.RebuildCoordinator.Stop(); err != nil {
			slog.Error("Failed to stop rebuild coordinator", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.components.Orchestrator.Drain(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	// Cancel the application context
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	app.components.release(shutdownCtx)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}

// Rebuild runs one rebuild pass outside the HTTP server and waits for the
// jobs it dispatched
func (app *IndexSyncApp) Rebuild(ctx context.Context, index, mode string, maxDocs int64) (*indexsync.RebuildResult, error) {
	o := app.components.Orchestrator

	var (
		result *indexsync.RebuildResult
		err    error
	)
	switch mode {
	case indexsync.ModeFull:
		result, err = o.RebuildFull(ctx, index, maxDocs)
	case indexsync.ModeIncremental:
		result, err = o.RebuildIncremental(ctx, index, maxDocs)
	default:
		return nil, fmt.Errorf("unknown rebuild mode %q", mode)
	}
	if drainErr := o.Drain(ctx); drainErr != nil && err == nil {
		err = drainErr
	}
	return result, err
}

// GetConfig returns the application configuration
func (app *IndexSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *IndexSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// release closes the backends in reverse creation order
func (c *AppComponents) release(ctx context.Context) {
	if c.locks != nil {
		c.locks.close()
		c.locks = nil
	}
	if c.Storage != nil {
		c.Storage.Cleanup(ctx)
		c.Storage = nil
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "Failed to shutdown telemetry", "error", err)
		}
		c.Telemetry = nil
	}
}
