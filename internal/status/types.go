package status

import "time"

// SyncPhase represents the current phase of the background rebuild of an index
type SyncPhase string

const (
	// SyncPhaseSyncing means a rebuild pass is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last pass finished
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last pass failed or never ran
	SyncPhaseFailed SyncPhase = "Failed"
)

// SyncStatus represents the state of the background rebuild of one index
type SyncStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last pass
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of passes since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful pass
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// VisitedCount is the number of pending documents the last pass visited
	VisitedCount int64 `json:"visitedCount,omitempty"`

	// FailedCount is the number of documents the last pass left pending
	FailedCount int64 `json:"failedCount,omitempty"`

	// SyncSchedule is the configured rebuild interval, e.g. "2m"
	SyncSchedule string `json:"syncSchedule,omitempty"`
}
