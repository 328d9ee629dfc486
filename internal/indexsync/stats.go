package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/search"
)

// pendingSample is the number of pending customIds listed per database
const pendingSample = 10

// GetStats implements Service.GetStats. The index side is best effort: when
// the search engine cannot be reached the document is reported as not indexed.
func (o *Orchestrator) GetStats(ctx context.Context, index string, src config.SourceConfig, id string) (*DocStats, error) {
	store, err := o.source(index, src)
	if err != nil {
		return nil, err
	}
	doc, err := o.load(ctx, store, id)
	if err != nil {
		return nil, err
	}

	customID := doc.CustomID()
	stats := &DocStats{
		Index:         index,
		Database:      src.Database,
		Collection:    src.Collection,
		ID:            doc.ID,
		CustomID:      customID,
		State:         doc.State(),
		UpdateVersion: doc.UpdateVersion,
		IndexVersion:  doc.IndexVersion,
		IndexAt:       doc.IndexAt,
	}
	if customID == "" {
		return stats, nil
	}

	if a, ok := o.active.Load(lock.Key(index, customID)); ok && a.jobs > 0 {
		stats.State = a.state
	}

	indexed, err := o.writer.Get(ctx, index, customID)
	switch {
	case errors.Is(err, search.ErrIndexNotFound):
	case err != nil:
		slog.WarnContext(ctx, "Failed to read indexed document", "index", index, "custom_id", customID, "error", err)
	case indexed != nil:
		stats.InIndex = true
		stats.IndexedVersion = indexed.UpdateVersion
	}

	if o.queue != nil {
		entry, err := o.queue.GetOrCreate(ctx, src.Database, src.Collection, customID, doc.ID)
		if err != nil {
			slog.WarnContext(ctx, "Failed to read index queue entry", "custom_id", customID, "error", err)
		} else {
			stats.QueueStatus = entry.Status
		}
	}
	return stats, nil
}

// GetIndexStats implements Service.GetIndexStats. Queue counts cover the
// whole queue of every database feeding the index.
func (o *Orchestrator) GetIndexStats(ctx context.Context, index string) (*IndexStats, error) {
	idx, err := o.indexConfig(index)
	if err != nil {
		return nil, err
	}

	stats := &IndexStats{
		Index:    index,
		InFlight: o.inFlight.Value(),
		Sources:  make([]SourceStats, 0, len(idx.Sources)),
	}

	var databases []string
	seen := map[string]bool{}
	for _, src := range idx.Sources {
		store, err := o.storeFor(src)
		if err != nil {
			return nil, err
		}
		counts, err := store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", src, err)
		}
		stats.Sources = append(stats.Sources, SourceStats{
			Database:   src.Database,
			Collection: src.Collection,
			Counts:     counts,
		})
		stats.Total += counts.Total
		stats.Pending += counts.Pending
		stats.Deleted += counts.Deleted

		if !seen[src.Database] {
			seen[src.Database] = true
			databases = append(databases, src.Database)
		}
	}

	indexed, err := o.writer.Count(ctx, index, nil)
	switch {
	case errors.Is(err, search.ErrIndexNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to count indexed documents: %w", err)
	default:
		stats.Indexed = indexed
	}

	if o.queue != nil {
		for _, database := range databases {
			qs, err := o.queueStats(ctx, database)
			if err != nil {
				return nil, err
			}
			stats.Queues = append(stats.Queues, *qs)
		}
	}

	if last, ok := o.rebuilds.Load(index); ok {
		stats.LastRebuild = last
	}
	return stats, nil
}

func (o *Orchestrator) queueStats(ctx context.Context, database string) (*QueueStats, error) {
	byStatus, err := o.queue.CountByStatus(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue of %s: %w", database, err)
	}
	qs := &QueueStats{Database: database, ByStatus: byStatus}
	err = o.queue.Pending(ctx, database, pendingSample, func(e *indexqueue.Entry) error {
		qs.PendingIDs = append(qs.PendingIDs, e.CustomID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending queue entries of %s: %w", database, err)
	}
	return qs, nil
}
