package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mongoadmin/indexsync/internal/status"
)

type cachedStateService struct {
	persistence status.StatusPersistence
	schedule    string

	mu       sync.RWMutex
	statuses map[string]*status.SyncStatus
}

// NewStateService creates a state service that caches statuses in memory and
// writes every change through to persistence. schedule is recorded in every
// status for display.
func NewStateService(persistence status.StatusPersistence, schedule time.Duration) IndexStateService {
	if persistence == nil {
		persistence = status.NewMemoryStatusPersistence()
	}
	return &cachedStateService{
		persistence: persistence,
		schedule:    schedule.String(),
		statuses:    make(map[string]*status.SyncStatus),
	}
}

func (c *cachedStateService) Initialize(ctx context.Context, indexNames []string) error {
	for _, name := range indexNames {
		syncStatus := c.load(ctx, name)
		c.mu.Lock()
		c.statuses[name] = syncStatus
		c.mu.Unlock()
	}
	return nil
}

func (c *cachedStateService) load(ctx context.Context, indexName string) *status.SyncStatus {
	syncStatus, err := c.persistence.LoadStatus(ctx, indexName)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load rebuild status, starting fresh", "index", indexName, "error", err)
		syncStatus = &status.SyncStatus{}
	}

	switch {
	case syncStatus.Phase == "":
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "No previous rebuild"
	case syncStatus.Phase == status.SyncPhaseSyncing:
		slog.WarnContext(ctx, "Previous rebuild was interrupted", "index", indexName)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Previous rebuild was interrupted"
	default:
		syncStatus.SyncSchedule = c.schedule
		return syncStatus
	}

	syncStatus.SyncSchedule = c.schedule
	if err := c.persistence.SaveStatus(ctx, indexName, syncStatus); err != nil {
		slog.WarnContext(ctx, "Failed to persist rebuild status", "index", indexName, "error", err)
	}
	return syncStatus
}

func (c *cachedStateService) ListSyncStatuses(_ context.Context) (map[string]*status.SyncStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]*status.SyncStatus, len(c.statuses))
	for name, syncStatus := range c.statuses {
		statusCopy := *syncStatus
		result[name] = &statusCopy
	}
	return result, nil
}

func (c *cachedStateService) GetSyncStatus(_ context.Context, indexName string) (*status.SyncStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	syncStatus, ok := c.statuses[indexName]
	if !ok {
		return nil, fmt.Errorf("no rebuild status for index %s", indexName)
	}
	statusCopy := *syncStatus
	return &statusCopy, nil
}

func (c *cachedStateService) UpdateSyncStatus(ctx context.Context, indexName string, syncStatus *status.SyncStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *syncStatus
	stored.SyncSchedule = c.schedule
	if err := c.persistence.SaveStatus(ctx, indexName, &stored); err != nil {
		return err
	}
	c.statuses[indexName] = &stored
	return nil
}

func (c *cachedStateService) UpdateStatusAtomically(
	ctx context.Context,
	indexName string,
	testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.statuses[indexName]
	if !ok {
		return false, fmt.Errorf("no rebuild status for index %s", indexName)
	}

	// the function works on a copy so a failed save leaves the cache untouched
	next := *current
	if !testAndUpdateFn(&next) {
		return false, nil
	}
	if err := c.persistence.SaveStatus(ctx, indexName, &next); err != nil {
		return false, err
	}
	c.statuses[indexName] = &next
	return true, nil
}
