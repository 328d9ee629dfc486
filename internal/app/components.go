package app

import (
	"github.com/mongoadmin/indexsync/internal/app/storage"
	"github.com/mongoadmin/indexsync/internal/indexsync"
	"github.com/mongoadmin/indexsync/internal/sync/coordinator"
	"github.com/mongoadmin/indexsync/internal/sync/state"
	"github.com/mongoadmin/indexsync/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Orchestrator serves document operations and runs indexing jobs
	Orchestrator *indexsync.Orchestrator

	// RebuildCoordinator runs background incremental rebuilds; nil when
	// indexing.rebuildInterval is 0
	RebuildCoordinator coordinator.Coordinator

	// StateService tracks background rebuild statuses
	StateService state.IndexStateService

	// Storage owns the document storage connection
	Storage storage.Factory

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry

	locks *lockBackend
}
