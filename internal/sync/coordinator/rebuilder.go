package coordinator

import (
	"context"

	"github.com/mongoadmin/indexsync/internal/indexsync"
)

// Rebuilder runs incremental rebuild passes
//
//go:generate mockgen -destination=mocks/mock_rebuilder.go -package=mocks -source=rebuilder.go Rebuilder
type Rebuilder interface {
	RebuildIncremental(ctx context.Context, index string, maxDocs int64) (*indexsync.RebuildResult, error)
}
