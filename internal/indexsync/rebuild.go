package indexsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/otel"
	"github.com/mongoadmin/indexsync/internal/search"
)

// RebuildFull implements Service.RebuildFull
func (o *Orchestrator) RebuildFull(ctx context.Context, index string, maxDocs int64) (*RebuildResult, error) {
	return o.rebuild(ctx, index, ModeFull, maxDocs)
}

// RebuildIncremental implements Service.RebuildIncremental
func (o *Orchestrator) RebuildIncremental(ctx context.Context, index string, maxDocs int64) (*RebuildResult, error) {
	return o.rebuild(ctx, index, ModeIncremental, maxDocs)
}

// LastRebuild returns the result of the latest rebuild of index, if any
func (o *Orchestrator) LastRebuild(index string) (*RebuildResult, bool) {
	return o.rebuilds.Load(index)
}

// rebuild visits the documents of every source of index, all of them in full
// mode and only the pending ones in incremental mode, and runs the indexing
// job on each. maxDocs bounds the number of documents visited over all
// sources; zero means no bound. Failing documents are counted and left
// pending, they do not stop the pass.
func (o *Orchestrator) rebuild(ctx context.Context, index, mode string, maxDocs int64) (result *RebuildResult, err error) {
	idx, err := o.indexConfig(index)
	if err != nil {
		return nil, err
	}
	if maxDocs < 0 {
		return nil, invalidArgument(fmt.Errorf("maxDocs must not be negative, got %d", maxDocs))
	}

	ctx, span := otel.StartSpan(ctx, o.tracer, "indexsync.Rebuild",
		trace.WithAttributes(otel.AttrIndexName.String(index), otel.AttrRebuildMode.String(mode)))
	defer span.End()

	start := time.Now()
	result = &RebuildResult{
		Index:     index,
		Mode:      mode,
		StartedAt: start.UTC(),
		Outcomes:  map[search.Outcome]int64{},
	}
	defer func() {
		elapsed := time.Since(start)
		result.DurationMillis = elapsed.Milliseconds()
		if err != nil {
			result.Error = err.Error()
			otel.RecordError(span, err)
		}
		span.SetAttributes(otel.AttrResultCount.Int64(result.Visited))
		o.metrics.RecordRebuild(ctx, index, mode, result.Visited, elapsed, err == nil)
		o.rebuilds.Store(index, result)
		slog.InfoContext(ctx, "Rebuild finished",
			"index", index,
			"mode", mode,
			"visited", result.Visited,
			"failed", result.Failed,
			"duration", elapsed,
			"error", err)
	}()

	if mode == ModeFull {
		if err := o.writer.RecreateIndex(ctx, index); err != nil {
			return result, fmt.Errorf("failed to recreate index %s: %w", index, err)
		}
		o.ready.Store(index, struct{}{})
	} else if err := o.ensureIndex(ctx, index); err != nil {
		return result, fmt.Errorf("failed to create index %s: %w", index, err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	var scanErr error
	for _, src := range idx.Sources {
		var limit int64
		if maxDocs > 0 {
			if limit = maxDocs - result.Visited; limit <= 0 {
				break
			}
		}

		store, err := o.storeFor(src)
		if err != nil {
			scanErr = err
			break
		}
		if mode == ModeIncremental {
			if err := store.EnsurePendingIndex(gctx); err != nil {
				slog.WarnContext(gctx, "Failed to create pending index", "source", src.String(), "error", err)
			}
		}

		err = store.Scan(gctx, mode == ModeIncremental, limit, func(doc *docstore.Document) error {
			result.Visited++
			id := doc.ID
			g.Go(func() error {
				outcome, jobErr := o.runJob(gctx, index, src, id, mode == ModeFull)
				mu.Lock()
				defer mu.Unlock()
				if jobErr != nil {
					result.Failed++
					slog.WarnContext(gctx, "Failed to sync document during rebuild",
						"index", index,
						"source", src.String(),
						"id", id,
						"error", jobErr)
					return nil
				}
				result.Outcomes[outcome]++
				return nil
			})
			return nil
		})
		if err != nil {
			scanErr = fmt.Errorf("failed to scan %s: %w", src, err)
			break
		}
	}

	if err := g.Wait(); err != nil && scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		return result, scanErr
	}
	return result, nil
}
