// Package state tracks the background rebuild status of every index.
package state

import (
	"context"

	"github.com/mongoadmin/indexsync/internal/status"
)

// IndexStateService provides methods for inspecting and updating the rebuild
// state of the configured indexes.
//
//go:generate mockgen -destination=mocks/mock_index_state_service.go -package=mocks github.com/mongoadmin/indexsync/internal/sync/state IndexStateService
type IndexStateService interface {
	// Initialize loads the stored status of every index, resetting passes
	// interrupted by a previous shutdown. It is called once at startup.
	Initialize(ctx context.Context, indexNames []string) error
	// ListSyncStatuses returns a copy of every status.
	ListSyncStatuses(ctx context.Context) (map[string]*status.SyncStatus, error)
	// GetSyncStatus returns a copy of the status of the named index.
	GetSyncStatus(ctx context.Context, indexName string) (*status.SyncStatus, error)
	// UpdateSyncStatus replaces the status of the named index.
	UpdateSyncStatus(ctx context.Context, indexName string, syncStatus *status.SyncStatus) error
	// UpdateStatusAtomically applies testAndUpdateFn to the current status and
	// stores the result when the function reports a change, as one atomic step.
	UpdateStatusAtomically(
		ctx context.Context,
		indexName string,
		testAndUpdateFn func(syncStatus *status.SyncStatus) bool,
	) (bool, error)
}
