package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mongoadmin/indexsync/internal/status"
	"github.com/mongoadmin/indexsync/internal/sync/state"
)

// Coordinator runs the background rebuild of every configured index
type Coordinator interface {
	// Start runs a pass immediately and then on every tick.
	// Blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop stops the loop and waits for the running pass to return
	Stop() error
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	rebuilder Rebuilder
	statusSvc state.IndexStateService
	indexes   []string
	interval  time.Duration
	maxDocs   int64

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithMaxDocs bounds every pass; zero means unbounded
func WithMaxDocs(n int64) Option {
	return func(c *defaultCoordinator) {
		c.maxDocs = n
	}
}

// New creates a coordinator that rebuilds indexes every interval
func New(
	rebuilder Rebuilder,
	statusSvc state.IndexStateService,
	indexes []string,
	interval time.Duration,
	opts ...Option,
) Coordinator {
	c := &defaultCoordinator{
		rebuilder: rebuilder,
		statusSvc: statusSvc,
		indexes:   indexes,
		interval:  interval,
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// pollingInterval returns interval shifted by a random jitter of up to a
// quarter of it in either direction, so replicas do not scan in lockstep
func pollingInterval(interval time.Duration) time.Duration {
	jitter := interval / 4
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	return interval + time.Duration(rand.Int64N(int64(2*jitter))) - jitter
}

// Start begins background rebuilds for all indexes
func (c *defaultCoordinator) Start(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("rebuild interval must be positive, got %s", c.interval)
	}
	slog.InfoContext(ctx, "Starting background rebuild coordinator",
		"index_count", len(c.indexes),
		"interval", c.interval)

	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.InfoContext(ctx, "Background rebuild coordinator shutting down")
	}()

	if err := c.statusSvc.Initialize(ctx, c.indexes); err != nil {
		return fmt.Errorf("failed to initialize rebuild status: %w", err)
	}

	ticker := time.NewTicker(pollingInterval(c.interval))
	defer ticker.Stop()

	c.runPass(coordCtx)

	for {
		select {
		case <-ticker.C:
			c.runPass(coordCtx)
			ticker.Reset(pollingInterval(c.interval))
		case <-coordCtx.Done():
			slog.InfoContext(ctx, "Rebuild coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping rebuild coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

func (c *defaultCoordinator) runPass(ctx context.Context) {
	for _, index := range c.indexes {
		if ctx.Err() != nil {
			return
		}
		c.rebuildIndex(ctx, index)
	}
}

// rebuildIndex claims the index by moving it to Syncing, runs one pass and
// records the result. An index already Syncing is left alone.
func (c *defaultCoordinator) rebuildIndex(ctx context.Context, index string) {
	var attempt int
	claimed, err := c.statusSvc.UpdateStatusAtomically(ctx, index, func(s *status.SyncStatus) bool {
		if s.Phase == status.SyncPhaseSyncing {
			return false
		}
		now := time.Now()
		s.Phase = status.SyncPhaseSyncing
		s.Message = "Rebuild in progress"
		s.LastAttempt = &now
		s.AttemptCount++
		attempt = s.AttemptCount
		return true
	})
	if err != nil {
		slog.ErrorContext(ctx, "Error claiming index for rebuild", "index", index, "error", err)
		return
	}
	if !claimed {
		slog.DebugContext(ctx, "Rebuild already in progress", "index", index)
		return
	}

	// the final status is always written, even when the pass panics
	final := &status.SyncStatus{
		Phase:        status.SyncPhaseFailed,
		Message:      fmt.Sprintf("Unexpected failure while rebuilding index %s", index),
		AttemptCount: attempt,
	}
	defer func() {
		if err := c.statusSvc.UpdateSyncStatus(context.WithoutCancel(ctx), index, final); err != nil {
			slog.ErrorContext(ctx, "Error updating rebuild status", "index", index, "error", err)
		}
	}()

	slog.DebugContext(ctx, "Starting background rebuild", "index", index, "attempt", attempt)
	result, err := c.rebuilder.RebuildIncremental(ctx, index, c.maxDocs)

	previous, getErr := c.statusSvc.GetSyncStatus(ctx, index)
	if getErr == nil {
		final.LastAttempt = previous.LastAttempt
		final.LastSyncTime = previous.LastSyncTime
	}
	if result != nil {
		final.VisitedCount = result.Visited
		final.FailedCount = result.Failed
	}

	if err != nil {
		final.Message = err.Error()
		slog.ErrorContext(ctx, "Background rebuild failed", "index", index, "error", err)
		return
	}

	now := time.Now()
	final.Phase = status.SyncPhaseComplete
	final.Message = "Rebuild completed"
	if final.FailedCount > 0 {
		final.Message = fmt.Sprintf("Rebuild completed, %d documents left pending", final.FailedCount)
	}
	final.LastSyncTime = &now
	final.AttemptCount = 0
}
