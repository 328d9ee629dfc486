// Package otel provides OpenTelemetry span helpers for the index sync service.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Attribute keys shared by every span the service emits.
const (
	AttrIndexName     = attribute.Key("index.name")
	AttrDatabase      = attribute.Key("db.namespace")
	AttrCollection    = attribute.Key("db.collection.name")
	AttrCustomID      = attribute.Key("document.custom_id")
	AttrUpdateVersion = attribute.Key("document.update_version")
	AttrOutcome       = attribute.Key("index.outcome")
	AttrRebuildMode   = attribute.Key("rebuild.mode")
	AttrResultCount   = attribute.Key("result.count")
)

// DocumentAttributes identifies one document of one index.
func DocumentAttributes(index, database, collection, customID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrIndexName.String(index),
		AttrDatabase.String(database),
		AttrCollection.String(collection),
	}
	if customID != "" {
		attrs = append(attrs, AttrCustomID.String(customID))
	}
	return attrs
}

// StartSpan starts a span on tracer. A nil tracer yields a no-op span and
// leaves ctx untouched.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, noop.Span{}
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError marks span as failed. The status text stays generic; the error
// itself is kept as a span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
