package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// IndexMetricsMeterName is the meter name of the indexing instruments
const IndexMetricsMeterName = "github.com/mongoadmin/indexsync/indexsync"

// Job kinds recorded by IndexMetrics
const (
	JobIndex  = "index"
	JobDelete = "delete"
)

// IndexMetrics holds the instruments of the indexing pipeline
type IndexMetrics struct {
	jobsTotal       metric.Int64Counter
	jobDuration     metric.Float64Histogram
	jobsInFlight    metric.Int64UpDownCounter
	rebuildDocs     metric.Int64Counter
	rebuildDuration metric.Float64Histogram
	lockDegraded    metric.Int64Counter
}

// NewIndexMetrics creates the indexing instruments. A nil provider yields nil,
// and every method of a nil *IndexMetrics is a no-op.
func NewIndexMetrics(provider metric.MeterProvider) (*IndexMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(IndexMetricsMeterName)

	jobsTotal, err := meter.Int64Counter(
		"indexsync_index_jobs_total",
		metric.WithDescription("Indexing and index delete jobs by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"indexsync_index_job_duration_seconds",
		metric.WithDescription("Duration of indexing jobs in seconds, lock wait included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	jobsInFlight, err := meter.Int64UpDownCounter(
		"indexsync_index_jobs_in_flight",
		metric.WithDescription("Indexing jobs currently running"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	rebuildDocs, err := meter.Int64Counter(
		"indexsync_rebuild_docs_total",
		metric.WithDescription("Documents visited by rebuild passes"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	rebuildDuration, err := meter.Float64Histogram(
		"indexsync_rebuild_duration_seconds",
		metric.WithDescription("Duration of rebuild passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	lockDegraded, err := meter.Int64Counter(
		"indexsync_lock_degraded_total",
		metric.WithDescription("Jobs that ran without the document lock"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &IndexMetrics{
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobsInFlight:    jobsInFlight,
		rebuildDocs:     rebuildDocs,
		rebuildDuration: rebuildDuration,
		lockDegraded:    lockDegraded,
	}, nil
}

// JobStarted counts a job as running
func (m *IndexMetrics) JobStarted(ctx context.Context, index string) {
	if m == nil {
		return
	}
	m.jobsInFlight.Add(ctx, 1, metric.WithAttributes(attribute.String("index", index)))
}

// JobFinished records the outcome of a job started with JobStarted
func (m *IndexMetrics) JobFinished(ctx context.Context, index, kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsInFlight.Add(ctx, -1, metric.WithAttributes(attribute.String("index", index)))

	attrs := metric.WithAttributes(
		attribute.String("index", index),
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	m.jobsTotal.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRebuild records one rebuild pass
func (m *IndexMetrics) RecordRebuild(ctx context.Context, index, mode string, docs int64, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.rebuildDocs.Add(ctx, docs, metric.WithAttributes(
		attribute.String("index", index),
		attribute.String("mode", mode),
	))
	m.rebuildDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("index", index),
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	))
}

// RecordLockDegraded counts a job that proceeded without its lock
func (m *IndexMetrics) RecordLockDegraded(ctx context.Context, index string) {
	if m == nil {
		return
	}
	m.lockDegraded.Add(ctx, 1, metric.WithAttributes(attribute.String("index", index)))
}
