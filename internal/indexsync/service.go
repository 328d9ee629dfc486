package indexsync

import (
	"context"
	"time"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/search"
)

// Rebuild modes
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Job outcomes in addition to the writer outcomes
const (
	// OutcomeSkipped means the document was already synced and nothing was sent
	OutcomeSkipped search.Outcome = "skipped"
	// OutcomeSuperseded means a newer version appeared while the job ran; the
	// document stays pending for the job that follows
	OutcomeSuperseded search.Outcome = "superseded"
	// OutcomeGone means the document no longer exists in storage
	OutcomeGone search.Outcome = "gone"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service defines the index synchronization operations
type Service interface {
	// CheckReadiness checks that the search engine can be reached
	CheckReadiness(ctx context.Context) error

	// CreateDoc stores a new tracked document and schedules its indexing
	CreateDoc(
		ctx context.Context, index string, src config.SourceConfig, id string, content map[string]any,
	) (*docstore.Document, error)

	// UpdateDoc applies path-qualified content updates and schedules indexing
	UpdateDoc(
		ctx context.Context, index string, src config.SourceConfig, id string, updates map[string]any,
	) (*docstore.Document, error)

	// GetDoc returns a document with its synchronization metadata
	GetDoc(ctx context.Context, index string, src config.SourceConfig, id string) (*docstore.Document, error)

	// DeleteDoc soft-deletes a document and schedules its removal from the index
	DeleteDoc(ctx context.Context, index string, src config.SourceConfig, id string) (*docstore.Document, error)

	// RebuildFull recreates the index and re-indexes every document
	RebuildFull(ctx context.Context, index string, maxDocs int64) (*RebuildResult, error)

	// RebuildIncremental re-indexes the documents that are still pending
	RebuildIncremental(ctx context.Context, index string, maxDocs int64) (*RebuildResult, error)

	// GetStats returns the synchronization state of one document
	GetStats(ctx context.Context, index string, src config.SourceConfig, id string) (*DocStats, error)

	// GetIndexStats returns aggregate counts for an index
	GetIndexStats(ctx context.Context, index string) (*IndexStats, error)

	// Search runs a highlighted phrase search on an index
	Search(ctx context.Context, index string, req search.SearchRequest) (*search.SearchResult, error)
}

// RebuildResult summarizes one rebuild pass
type RebuildResult struct {
	Index          string                   `json:"index"`
	Mode           string                   `json:"mode"`
	Visited        int64                    `json:"visited"`
	Failed         int64                    `json:"failed"`
	Outcomes       map[search.Outcome]int64 `json:"outcomes"`
	StartedAt      time.Time                `json:"startedAt"`
	DurationMillis int64                    `json:"durationMillis"`
	Error          string                   `json:"error,omitempty"`
}

// DocStats is the synchronization view of one document
type DocStats struct {
	Index         string            `json:"index"`
	Database      string            `json:"database"`
	Collection    string            `json:"collection"`
	ID            any               `json:"id"`
	CustomID      string            `json:"customId"`
	State         docstore.State    `json:"state"`
	UpdateVersion int64             `json:"updateVersion"`
	IndexVersion  int64             `json:"indexVersion"`
	IndexAt       int64             `json:"indexAt"`
	QueueStatus   indexqueue.Status `json:"queueStatus,omitempty"`

	// InIndex reports whether the search index holds the document, and at
	// which updateVersion
	InIndex        bool  `json:"inIndex"`
	IndexedVersion int64 `json:"indexedVersion,omitempty"`
}

// SourceStats holds the counts of one source collection
type SourceStats struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	docstore.Counts
}

// QueueStats holds the index queue counts of one database
type QueueStats struct {
	Database string                      `json:"database"`
	ByStatus map[indexqueue.Status]int64 `json:"byStatus"`

	// PendingIDs samples the customIds still waiting for the index
	PendingIDs []string `json:"pendingIds,omitempty"`
}

// IndexStats aggregates the state of an index over all of its sources
type IndexStats struct {
	Index       string         `json:"index"`
	Total       int64          `json:"total"`
	Pending     int64          `json:"pending"`
	Deleted     int64          `json:"deleted"`
	Indexed     int64          `json:"indexed"`
	InFlight    int64          `json:"inFlight"`
	Sources     []SourceStats  `json:"sources"`
	Queues      []QueueStats   `json:"queues,omitempty"`
	LastRebuild *RebuildResult `json:"lastRebuild,omitempty"`
}
