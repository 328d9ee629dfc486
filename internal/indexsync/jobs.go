package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/flatten"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/otel"
	"github.com/mongoadmin/indexsync/internal/search"
	"github.com/mongoadmin/indexsync/internal/telemetry"
)

// dispatch runs the job for id in the background on a context detached from
// ctx, so it outlives the request that triggered it
func (o *Orchestrator) dispatch(ctx context.Context, index string, src config.SourceConfig, id any) {
	jobCtx := context.WithoutCancel(ctx)
	o.jobs.Add(1)

	go func() {
		defer o.jobs.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(jobCtx, "Indexing job panicked",
					"index", index,
					"source", src.String(),
					"id", id,
					"panic", r)
			}
		}()

		if err := o.sem.Acquire(jobCtx, 1); err != nil {
			return
		}
		defer o.sem.Release(1)

		outcome, err := o.runJob(jobCtx, index, src, id, false)
		if err != nil {
			slog.WarnContext(jobCtx, "Indexing job failed, document stays pending",
				"index", index,
				"source", src.String(),
				"id", id,
				"error", err)
			return
		}
		slog.DebugContext(jobCtx, "Indexing job finished",
			"index", index,
			"source", src.String(),
			"id", id,
			"outcome", outcome)
	}()
}

// runJob brings the search index in line with the stored document, indexing
// it or propagating its soft delete. With force the version stored in the
// index is not consulted and synced documents are written again.
func (o *Orchestrator) runJob(
	ctx context.Context, index string, src config.SourceConfig, id any, force bool,
) (outcome search.Outcome, err error) {
	store, err := o.storeFor(src)
	if err != nil {
		return "", err
	}

	doc, err := store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNoDocument) {
			return OutcomeGone, nil
		}
		return "", err
	}
	customID := doc.CustomID()
	if customID == "" {
		if doc.IsDeleted {
			// never indexed under a business id, nothing to remove
			return o.finishDelete(ctx, store, src, doc, search.OutcomeNotFound)
		}
		return "", fmt.Errorf("document %v: %w", id, ErrMissingCustomID)
	}

	ctx, span := otel.StartSpan(ctx, o.tracer, "indexsync.Job",
		trace.WithAttributes(otel.DocumentAttributes(index, src.Database, src.Collection, customID)...))
	defer span.End()

	key := lock.Key(index, customID)
	kind := telemetry.JobIndex
	start := time.Now()
	o.inFlight.Inc()
	o.metrics.JobStarted(ctx, index)
	defer func() {
		o.inFlight.Dec()
		label := outcomeLabel(outcome, err)
		o.metrics.JobFinished(ctx, index, kind, label, time.Since(start))
		span.SetAttributes(otel.AttrOutcome.String(label))
		otel.RecordError(span, err)
	}()

	err = o.locker.WithLock(ctx, key, o.lockWait, o.lockHold, func(ctx context.Context) error {
		// re-read under the lock so the freshest version is the one indexed
		current, readErr := store.GetByID(ctx, id)
		if errors.Is(readErr, docstore.ErrNoDocument) {
			outcome = OutcomeGone
			return nil
		}
		if readErr != nil {
			return readErr
		}
		current, readErr = store.EnsureMetadata(ctx, current)
		if readErr != nil {
			return readErr
		}
		if current.CustomID() != customID {
			return fmt.Errorf("customId of document %v changed from %s to %s", id, customID, current.CustomID())
		}
		span.SetAttributes(otel.AttrUpdateVersion.Int64(current.UpdateVersion))

		var jobErr error
		switch {
		case current.IsDeleted:
			kind = telemetry.JobDelete
			o.begin(key, docstore.StateDeleting)
			defer o.end(key)
			outcome, jobErr = o.removeLocked(ctx, store, index, src, current)
		case !force && current.State() == docstore.StateSynced:
			outcome = OutcomeSkipped
		default:
			o.begin(key, docstore.StateIndexing)
			defer o.end(key)
			outcome, jobErr = o.indexLocked(ctx, store, index, src, current, force)
		}
		return jobErr
	})
	return outcome, err
}

// indexLocked writes doc to the search index and confirms it in storage
// unless a newer version appeared meanwhile
func (o *Orchestrator) indexLocked(
	ctx context.Context,
	store *docstore.Store,
	index string,
	src config.SourceConfig,
	doc *docstore.Document,
	force bool,
) (search.Outcome, error) {
	if err := o.ensureIndex(ctx, index); err != nil {
		return "", fmt.Errorf("failed to create index %s: %w", index, err)
	}

	outcome, err := o.writer.Upsert(ctx, search.UpsertRequest{
		Index:            index,
		CustomID:         doc.CustomID(),
		Source:           sourceOf(src),
		Flat:             flatten.Flatten(indexableContent(doc.Content), ""),
		UpdateVersion:    doc.UpdateVersion,
		UpdateAt:         doc.UpdateAt,
		UpdateAtTimeZone: doc.UpdateAtTimeZone,
		ForceReindex:     force,
	})
	if err != nil {
		if errors.Is(err, search.ErrIndexNotFound) {
			// deleted behind our back; create it again on the next job
			o.ready.Delete(index)
		}
		return "", fmt.Errorf("failed to index document %s: %w", doc.CustomID(), err)
	}
	if outcome == search.OutcomeStale {
		return outcome, nil
	}

	marked, err := store.MarkIndexed(ctx, doc.ID, doc.UpdateVersion, doc.UpdateAt)
	if err != nil {
		return "", err
	}
	if !marked {
		// a forced write of a synced document has nothing left to confirm
		latest, err := store.GetByID(ctx, doc.ID)
		if err == nil && latest.UpdateVersion == doc.UpdateVersion && latest.State() == docstore.StateSynced {
			return outcome, nil
		}
		slog.DebugContext(ctx, "Document changed while indexing, leaving it pending",
			"index", index,
			"custom_id", doc.CustomID(),
			"indexed_version", doc.UpdateVersion)
		return OutcomeSuperseded, nil
	}

	if synced, err := store.GetByID(ctx, doc.ID); err == nil {
		o.recordQueue(ctx, src, synced)
	}
	return outcome, nil
}

// removeLocked deletes doc from the search index and finishes the two-phase
// delete when the index no longer holds it
func (o *Orchestrator) removeLocked(
	ctx context.Context,
	store *docstore.Store,
	index string,
	src config.SourceConfig,
	doc *docstore.Document,
) (search.Outcome, error) {
	outcome, err := o.writer.Delete(ctx, index, doc.CustomID(), doc.UpdateVersion)
	if err != nil {
		return "", fmt.Errorf("failed to delete document %s from index: %w", doc.CustomID(), err)
	}
	if outcome != search.OutcomeDeleted && outcome != search.OutcomeNotFound {
		// stale or conflict: the document stays pending
		return outcome, nil
	}
	return o.finishDelete(ctx, store, src, doc, outcome)
}

// finishDelete sets isIndexDeleted and purges the record, which only succeeds
// once both delete flags are set
func (o *Orchestrator) finishDelete(
	ctx context.Context,
	store *docstore.Store,
	src config.SourceConfig,
	doc *docstore.Document,
	outcome search.Outcome,
) (search.Outcome, error) {
	marked, err := store.MarkIndexDeleted(ctx, doc.ID, doc.UpdateVersion)
	if err != nil {
		return "", err
	}
	if !marked {
		return OutcomeSuperseded, nil
	}

	purged, err := store.Purge(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	if purged {
		gone := *doc
		gone.IsIndexDeleted = true
		o.recordQueue(ctx, src, &gone)
	}
	return outcome, nil
}

func (o *Orchestrator) begin(key string, state docstore.State) {
	o.active.Compute(key, func(old activity, _ bool) (activity, bool) {
		return activity{jobs: old.jobs + 1, state: state}, false
	})
}

func (o *Orchestrator) end(key string) {
	o.active.Compute(key, func(old activity, _ bool) (activity, bool) {
		old.jobs--
		return old, old.jobs <= 0
	})
}

// indexableContent drops the customId, which identifies the indexed document
// and is not searchable content
func indexableContent(content map[string]any) map[string]any {
	out := make(map[string]any, len(content))
	for k, v := range content {
		if k != docstore.FieldCustomID {
			out[k] = v
		}
	}
	return out
}

func outcomeLabel(outcome search.Outcome, err error) string {
	if err != nil {
		return "error"
	}
	return string(outcome)
}
