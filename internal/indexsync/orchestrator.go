package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/mongoadmin/indexsync/internal/clock"
	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/docstore"
	"github.com/mongoadmin/indexsync/internal/indexqueue"
	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/otel"
	"github.com/mongoadmin/indexsync/internal/search"
	"github.com/mongoadmin/indexsync/internal/telemetry"
)

const (
	// DefaultLockWait bounds how long a job waits for the document lock
	DefaultLockWait = 10 * time.Second

	// DefaultLockHold bounds how long a job may hold the document lock
	DefaultLockHold = 30 * time.Second

	// DefaultWorkers bounds the number of indexing jobs running at once
	DefaultWorkers = 8

	// TracerName is the tracer name of the orchestrator spans
	TracerName = "github.com/mongoadmin/indexsync/indexsync"
)

// IndexWriter writes and reads documents in the search engine
type IndexWriter interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, index, customID string) (*search.IndexedDocument, error)
	Upsert(ctx context.Context, req search.UpsertRequest) (search.Outcome, error)
	Delete(ctx context.Context, index, customID string, deleteVersion int64) (search.Outcome, error)
	Count(ctx context.Context, index string, source *search.Source) (int64, error)
	Search(ctx context.Context, index string, req search.SearchRequest) (*search.SearchResult, error)
	CreateIndex(ctx context.Context, index string) error
	RecreateIndex(ctx context.Context, index string) error
}

// Locker runs work while holding a named lock
type Locker interface {
	WithLock(ctx context.Context, key string, wait, hold time.Duration, body func(ctx context.Context) error) error
}

// Queue mirrors document progress into the per-database index queue
type Queue interface {
	GetOrCreate(ctx context.Context, database, collection, customID string, storageID any) (*indexqueue.Entry, error)
	Record(ctx context.Context, database, collection string, doc *docstore.Document) error
	EnsureCompoundIndex(ctx context.Context, database string) error
	CountByStatus(ctx context.Context, database string) (map[indexqueue.Status]int64, error)
	Pending(ctx context.Context, database string, limit int64, fn func(*indexqueue.Entry) error) error
}

// activity tracks the jobs running on one lock key
type activity struct {
	jobs  int
	state docstore.State
}

// Orchestrator is the default implementation of Service
type Orchestrator struct {
	provider docstore.Provider
	writer   IndexWriter
	locker   Locker
	queue    Queue
	clock    clock.Clock
	indexes  map[string]config.IndexConfig
	lockWait time.Duration
	lockHold time.Duration
	workers  int
	metrics  *telemetry.IndexMetrics
	tracer   trace.Tracer

	sem      *semaphore.Weighted
	jobs     sync.WaitGroup
	inFlight *xsync.Counter
	active   *xsync.MapOf[string, activity]
	ready    *xsync.MapOf[string, struct{}]
	rebuilds *xsync.MapOf[string, *RebuildResult]
}

var _ Service = (*Orchestrator)(nil)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLocker sets the per-document locker. Defaults to an in-process lock.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

// WithQueue mirrors progress into the index queue
func WithQueue(q Queue) Option {
	return func(o *Orchestrator) {
		o.queue = q
	}
}

// WithClock sets the clock used for metadata timestamps
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLockTimeouts sets the lock wait and hold timeouts
func WithLockTimeouts(wait, hold time.Duration) Option {
	return func(o *Orchestrator) {
		o.lockWait = wait
		o.lockHold = hold
	}
}

// WithWorkers bounds the number of concurrent indexing jobs
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMetrics records job and rebuild metrics
func WithMetrics(m *telemetry.IndexMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer records spans for every operation and job
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// New creates an orchestrator for the given indexes
func New(provider docstore.Provider, writer IndexWriter, indexes []config.IndexConfig, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New("document provider is required")
	}
	if writer == nil {
		return nil, errors.New("index writer is required")
	}
	if len(indexes) == 0 {
		return nil, errors.New("at least one index is required")
	}

	o := &Orchestrator{
		provider: provider,
		writer:   writer,
		clock:    clock.Real{},
		indexes:  make(map[string]config.IndexConfig, len(indexes)),
		lockWait: DefaultLockWait,
		lockHold: DefaultLockHold,
		workers:  DefaultWorkers,
		inFlight: xsync.NewCounter(),
		active:   xsync.NewMapOf[string, activity](),
		ready:    xsync.NewMapOf[string, struct{}](),
		rebuilds: xsync.NewMapOf[string, *RebuildResult](),
	}
	for _, idx := range indexes {
		// lock keys are "<index>:<customId>"
		if idx.Name == "" || strings.Contains(idx.Name, ":") {
			return nil, fmt.Errorf("invalid index name %q", idx.Name)
		}
		o.indexes[idx.Name] = idx
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.locker == nil {
		o.locker = lock.NewLocker(lock.NewLocal())
	}
	o.sem = semaphore.NewWeighted(int64(o.workers))
	return o, nil
}

// Prepare creates the search indexes and the supporting storage indexes.
// Failures are logged; indexes are created again on first use.
func (o *Orchestrator) Prepare(ctx context.Context) {
	databases := map[string]bool{}
	for name, idx := range o.indexes {
		if err := o.ensureIndex(ctx, name); err != nil {
			slog.WarnContext(ctx, "Failed to create search index", "index", name, "error", err)
		}
		for _, src := range idx.Sources {
			store, err := o.storeFor(src)
			if err == nil {
				err = store.EnsurePendingIndex(ctx)
			}
			if err != nil {
				slog.WarnContext(ctx, "Failed to create pending index", "source", src.String(), "error", err)
			}
			databases[src.Database] = true
		}
	}
	if o.queue == nil {
		return
	}
	for database := range databases {
		if err := o.queue.EnsureCompoundIndex(ctx, database); err != nil {
			slog.WarnContext(ctx, "Failed to create queue index", "database", database, "error", err)
		}
	}
}

// Drain waits until every dispatched job has finished or ctx is done
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("indexing jobs still running: %w", ctx.Err())
	}
}

// CheckReadiness implements Service.CheckReadiness
func (o *Orchestrator) CheckReadiness(ctx context.Context) error {
	if err := o.writer.Ping(ctx); err != nil {
		return fmt.Errorf("search engine not ready: %w", err)
	}
	return nil
}

// CreateDoc implements Service.CreateDoc. An empty id lets storage assign one.
func (o *Orchestrator) CreateDoc(
	ctx context.Context, index string, src config.SourceConfig, id string, content map[string]any,
) (*docstore.Document, error) {
	ctx, span := o.startSpan(ctx, "indexsync.CreateDoc", index, src)
	defer span.End()

	coll, err := o.collection(index, src)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	body := make(bson.M, len(content)+1)
	for k, v := range content {
		body[k] = v
	}
	record := bson.M{
		docstore.FieldContent:          body,
		docstore.FieldCreateAt:         o.clock.NowMillis(),
		docstore.FieldCreateAtTimeZone: int64(o.clock.UTCOffsetHours()),
	}
	if id != "" {
		record[docstore.FieldID] = docstore.ParseID(id)[0]
		// the id doubles as business id unless the content names its own
		if v, ok := body[docstore.FieldCustomID]; !ok || v == nil || v == "" {
			body[docstore.FieldCustomID] = id
		}
	}
	storageID, err := coll.InsertOne(ctx, record)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	doc, err := o.bump(ctx, src, docstore.NewStore(coll, o.clock), storageID, nil)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	o.dispatch(ctx, index, src, doc.ID)
	return doc, nil
}

// UpdateDoc implements Service.UpdateDoc
func (o *Orchestrator) UpdateDoc(
	ctx context.Context, index string, src config.SourceConfig, id string, updates map[string]any,
) (*docstore.Document, error) {
	ctx, span := o.startSpan(ctx, "indexsync.UpdateDoc", index, src)
	defer span.End()

	store, err := o.source(index, src)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	current, err := o.load(ctx, store, id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	doc, err := o.bump(ctx, src, store, current.ID, updates)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	o.dispatch(ctx, index, src, doc.ID)
	return doc, nil
}

// GetDoc implements Service.GetDoc
func (o *Orchestrator) GetDoc(ctx context.Context, index string, src config.SourceConfig, id string) (*docstore.Document, error) {
	store, err := o.source(index, src)
	if err != nil {
		return nil, err
	}
	return o.load(ctx, store, id)
}

// DeleteDoc implements Service.DeleteDoc
func (o *Orchestrator) DeleteDoc(
	ctx context.Context, index string, src config.SourceConfig, id string,
) (*docstore.Document, error) {
	ctx, span := o.startSpan(ctx, "indexsync.DeleteDoc", index, src)
	defer span.End()

	store, err := o.source(index, src)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	current, err := o.load(ctx, store, id)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	doc, err := store.MarkDeleted(ctx, current)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	o.recordQueue(ctx, src, doc)
	o.dispatch(ctx, index, src, doc.ID)
	return doc, nil
}

// Search implements Service.Search
func (o *Orchestrator) Search(ctx context.Context, index string, req search.SearchRequest) (*search.SearchResult, error) {
	if _, err := o.indexConfig(index); err != nil {
		return nil, err
	}
	ctx, span := otel.StartSpan(ctx, o.tracer, "indexsync.Search",
		trace.WithAttributes(otel.AttrIndexName.String(index)))
	defer span.End()

	result, err := o.writer.Search(ctx, index, req)
	if err != nil {
		otel.RecordError(span, err)
		if errors.Is(err, search.ErrIndexNotFound) {
			return &search.SearchResult{Page: req.Page, PageSize: req.PageSize, Hits: []search.Hit{}}, nil
		}
		if errors.Is(err, search.ErrInvalidQuery) {
			return nil, invalidArgument(err)
		}
		return nil, err
	}
	span.SetAttributes(otel.AttrResultCount.Int64(result.Total))
	return result, nil
}

// bump records a content change and mirrors it into the queue
func (o *Orchestrator) bump(
	ctx context.Context, src config.SourceConfig, store *docstore.Store, storageID any, updates map[string]any,
) (*docstore.Document, error) {
	current, err := store.GetByID(ctx, storageID)
	if err != nil {
		return nil, err
	}
	doc, err := store.BumpVersion(ctx, current, updates)
	if err != nil {
		return nil, err
	}
	o.recordQueue(ctx, src, doc)
	return doc, nil
}

func (o *Orchestrator) load(ctx context.Context, store *docstore.Store, id string) (*docstore.Document, error) {
	if id == "" {
		return nil, invalidArgument(ErrInvalidID)
	}
	return store.Get(ctx, id)
}

func (o *Orchestrator) indexConfig(index string) (*config.IndexConfig, error) {
	idx, ok := o.indexes[index]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, index)
	}
	return &idx, nil
}

func (o *Orchestrator) collection(index string, src config.SourceConfig) (docstore.Collection, error) {
	idx, err := o.indexConfig(index)
	if err != nil {
		return nil, err
	}
	if !idx.HasSource(src.Database, src.Collection) {
		return nil, fmt.Errorf("%w: %s is not a source of %s", ErrUnknownSource, src, index)
	}
	return o.provider.Collection(src.Database, src.Collection)
}

// source returns the store of a collection feeding index
func (o *Orchestrator) source(index string, src config.SourceConfig) (*docstore.Store, error) {
	coll, err := o.collection(index, src)
	if err != nil {
		return nil, err
	}
	return docstore.NewStore(coll, o.clock), nil
}

func (o *Orchestrator) storeFor(src config.SourceConfig) (*docstore.Store, error) {
	coll, err := o.provider.Collection(src.Database, src.Collection)
	if err != nil {
		return nil, err
	}
	return docstore.NewStore(coll, o.clock), nil
}

// ensureIndex creates the search index the first time it is written to
func (o *Orchestrator) ensureIndex(ctx context.Context, index string) error {
	if _, ok := o.ready.Load(index); ok {
		return nil
	}
	if err := o.writer.CreateIndex(ctx, index); err != nil {
		return err
	}
	o.ready.Store(index, struct{}{})
	return nil
}

// recordQueue mirrors doc into the index queue. Queue failures never fail
// the operation; the entry is rewritten on the next transition.
func (o *Orchestrator) recordQueue(ctx context.Context, src config.SourceConfig, doc *docstore.Document) {
	if o.queue == nil {
		return
	}
	if err := o.queue.Record(ctx, src.Database, src.Collection, doc); err != nil {
		slog.WarnContext(ctx, "Failed to record index queue entry",
			"source", src.String(),
			"custom_id", doc.CustomID(),
			"error", err)
	}
}

func (o *Orchestrator) startSpan(
	ctx context.Context, name, index string, src config.SourceConfig,
) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, o.tracer, name,
		trace.WithAttributes(otel.DocumentAttributes(index, src.Database, src.Collection, "")...))
}

func sourceOf(src config.SourceConfig) search.Source {
	return search.Source{DBName: src.Database, CollName: src.Collection}
}
