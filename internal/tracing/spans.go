package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanInit     = "catalog.init"
	SpanReload   = "catalog.reload"
	SpanChanges  = "catalog.changes"
	SpanDeferred = "catalog.deferred"
	SpanDelete   = "catalog.delete_collection"
)

// Span attribute keys.
const (
	AttrCollections = "catalog.collections"
	AttrRecords     = "catalog.records"
	AttrImported    = "batch.imported"
	AttrDeleted     = "batch.deleted"
	AttrMoved       = "batch.moved"
	AttrAssigned    = "enforcer.assigned"
	AttrRepaired    = "enforcer.repaired"
	AttrRelocated   = "enforcer.moved"
	AttrRemoved     = "enforcer.removed"
	AttrCollection  = "collection.id"
	AttrCascade     = "collection.cascade"
)

// Event names.
const (
	EventRebuilt  = "index.rebuilt"
	EventDeferred = "refresh.deferred"
)

// RecordError marks span failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Int is shorthand for an int attribute.
func Int(key string, v int) attribute.KeyValue {
	return attribute.Int(key, v)
}

// String is shorthand for a string attribute.
func String(key, v string) attribute.KeyValue {
	return attribute.String(key, v)
}
