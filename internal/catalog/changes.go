package catalog

import (
	"context"

	domain "github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/enforcer"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/tracing"
)

// HandleChanges is the single intake for storage change notifications.
// The enforcer repairs Identifiers first; deleted Records are pruned from
// their Collections and deleted Collections are unregistered (cascading
// when configured). The Registry refresh runs immediately, or once after
// BuildFinished when a build is pending.
func (c *Catalog) HandleChanges(ctx context.Context, batch storage.ChangeBatch) enforcer.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || batch.IsEmpty() {
		return enforcer.Report{}
	}

	ctx, span := c.tracer.Start(ctx, tracing.SpanChanges)
	defer span.End()
	span.SetAttributes(
		tracing.Int(tracing.AttrImported, len(batch.Imported)),
		tracing.Int(tracing.AttrDeleted, len(batch.Deleted)),
		tracing.Int(tracing.AttrMoved, len(batch.Moved)),
	)

	report := c.enforcer.Apply(batch)
	if report.Rebuilt {
		span.AddEvent(tracing.EventRebuilt)
	}
	c.publishReport(report)
	c.dropDestroyed(ctx, report.Destroyed)

	if report.Changed() || len(report.Moved) > 0 {
		c.registry.Invalidate()
	}

	span.SetAttributes(
		tracing.Int(tracing.AttrAssigned, len(report.Assigned)),
		tracing.Int(tracing.AttrRepaired, len(report.Repaired)),
		tracing.Int(tracing.AttrRelocated, len(report.Moved)),
		tracing.Int(tracing.AttrRemoved, len(report.Removed)),
	)

	c.requestRefresh(ctx)
	return report
}

// dropDestroyed keeps the Registry consistent with deleted assets.
func (c *Catalog) dropDestroyed(ctx context.Context, destroyed []domain.Object) {
	for _, obj := range destroyed {
		switch o := obj.(type) {
		case *domain.Record:
			if owner, ok := c.registry.Collection(o.Collection()); ok {
				if pruned := owner.Prune(); len(pruned) > 0 {
					log.Debug(log.CatCatalog, "Pruned deleted records", "collection", owner.Location(), "count", len(pruned))
				}
			}
		case *domain.Collection:
			if c.registry.Unregister(o) {
				c.publish(EventUnregistered, Event{ID: o.ID(), Location: o.Location()})
			}
			if c.opts.CascadeDelete {
				c.cascade(ctx, o)
			}
		}
	}
}

// requestRefresh reloads now, or coalesces into one deferred reload while a
// build is pending.
func (c *Catalog) requestRefresh(ctx context.Context) {
	if c.building {
		if !c.deferred {
			log.Debug(log.CatCatalog, "Deferring refresh until build finishes")
		}
		c.deferred = true
		return
	}
	if _, err := c.reload(ctx); err != nil {
		log.ErrorErr(log.CatCatalog, "Refresh after changes failed", err)
	}
}

// BuildStarted marks an external build as pending. Refreshes requested
// until BuildFinished are coalesced, and lookups do not reload a stale
// index in the meantime.
func (c *Catalog) BuildStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.building = true
	c.registry.SetHeld(true)
}

// BuildFinished clears the pending build and runs the deferred refresh, if
// any. It reports whether a refresh ran.
func (c *Catalog) BuildFinished(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.building = false
	c.registry.SetHeld(false)
	if !c.deferred || c.closed {
		return false
	}
	c.deferred = false

	ctx, span := c.tracer.Start(ctx, tracing.SpanDeferred)
	defer span.End()
	span.AddEvent(tracing.EventDeferred)

	if _, err := c.reload(ctx); err != nil {
		tracing.RecordError(span, err)
		log.ErrorErr(log.CatCatalog, "Deferred refresh failed", err)
	}
	return true
}

// RefreshPending reports whether a deferred refresh is waiting.
func (c *Catalog) RefreshPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deferred
}
