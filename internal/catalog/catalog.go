// Package catalog is the application facade over the identity and registry
// subsystem. A Catalog is constructed once per store and passed to every
// consumer; it owns the asset identity map, the Registry, the uniqueness
// Enforcer and the shared reference Resolver, and it is the single intake
// for storage change notifications.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/catalog/internal/assets"
	domain "github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/enforcer"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/pubsub"
	"github.com/zjrosen/catalog/internal/reference"
	"github.com/zjrosen/catalog/internal/registry"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/tracing"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("catalog is shut down")

// Catalog ties the subsystem together.
type Catalog struct {
	mu sync.Mutex

	store    storage.Store
	kinds    *domain.Kinds
	db       *assets.Database
	registry *registry.Registry
	enforcer *enforcer.Enforcer
	resolver *reference.Resolver
	broker   *pubsub.Broker[Event]
	tracer   trace.Tracer
	opts     Options

	building    bool
	deferred    bool
	initialized bool
	closed      bool
}

// readOnlySetter is implemented by every store in this module.
type readOnlySetter interface {
	SetReadOnly(readOnly bool)
}

// New creates a Catalog over store for the registered kinds. Nothing is
// read from storage until Init.
func New(store storage.Store, kinds *domain.Kinds, opts ...Option) *Catalog {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("catalog")
	}

	if o.ReadOnly {
		if ro, ok := store.(readOnlySetter); ok {
			ro.SetReadOnly(true)
		}
	}

	db := assets.New(store, kinds)
	reg := registry.New(db)
	reg.SetReadOnly(o.ReadOnly)

	c := &Catalog{
		store:    store,
		kinds:    kinds,
		db:       db,
		registry: reg,
		enforcer: enforcer.New(db),
		broker:   pubsub.NewBroker[Event](),
		tracer:   o.Tracer,
		opts:     o,
	}
	// Resolution goes through the non-reloading lookup.
	c.resolver = reference.NewResolver(reg, o.CacheTTL, o.CacheCleanupInterval)
	return c
}

// Init runs a full enforcement pass over the store and then reloads the
// Registry, so every known Collection and Record has a unique, valid
// Identifier.
func (c *Catalog) Init(ctx context.Context) (enforcer.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return enforcer.Report{}, ErrClosed
	}

	ctx, span := c.tracer.Start(ctx, tracing.SpanInit)
	defer span.End()

	report := c.enforcer.Rebuild()
	c.publishReport(report)
	span.SetAttributes(
		tracing.Int(tracing.AttrAssigned, len(report.Assigned)),
		tracing.Int(tracing.AttrRepaired, len(report.Repaired)),
	)

	if _, err := c.reload(ctx); err != nil {
		tracing.RecordError(span, err)
		return report, err
	}
	c.initialized = true
	log.Info(log.CatCatalog, "Catalog initialized",
		"collections", c.registry.Len(), "assigned", len(report.Assigned), "repaired", len(report.Repaired))
	return report, nil
}

// Reload re-derives the Registry from storage.
func (c *Catalog) Reload(ctx context.Context) (registry.ReloadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return registry.ReloadResult{}, ErrClosed
	}
	return c.reload(ctx)
}

func (c *Catalog) reload(ctx context.Context) (registry.ReloadResult, error) {
	_, span := c.tracer.Start(ctx, tracing.SpanReload)
	defer span.End()

	result, err := c.registry.Reload()
	if err != nil {
		tracing.RecordError(span, err)
		return result, fmt.Errorf("reload registry: %w", err)
	}
	span.SetAttributes(
		tracing.Int(tracing.AttrCollections, c.registry.Len()),
		tracing.Int(tracing.AttrRecords, result.Records),
	)

	for _, col := range result.Registered {
		c.publish(EventRegistered, Event{ID: col.ID(), Location: col.Location(), Records: col.Count()})
	}
	for _, col := range result.Unregistered {
		c.publish(EventUnregistered, Event{ID: col.ID(), Location: col.Location()})
	}
	c.publish(EventReloaded, Event{Collections: c.registry.Len(), Records: result.Records})
	return result, nil
}

// Shutdown stops event delivery and drops cached resolutions. The Catalog
// cannot be used afterwards.
func (c *Catalog) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.resolver.Flush(ctx)
	c.broker.Close()
	log.Info(log.CatCatalog, "Catalog shut down")
	return nil
}

// Kinds returns the registration table.
func (c *Catalog) Kinds() *domain.Kinds {
	return c.kinds
}

// Store returns the storage provider.
func (c *Catalog) Store() storage.Store {
	return c.store
}

// IsReadOnly reports whether the Catalog is in run-time mode.
func (c *Catalog) IsReadOnly() bool {
	return c.opts.ReadOnly
}

// Collection returns the Collection with the given Identifier, reloading
// first if the index is stale.
func (c *Catalog) Collection(id identity.ID) (*domain.Collection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.GetByID(id)
}

// Collections returns every known Collection in location order.
func (c *Catalog) Collections() []*domain.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Collections()
}

// Validate reports invariant violations without repairing them.
func (c *Catalog) Validate(ctx context.Context) ([]registry.Issue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Validate()
}

// Snapshot describes the current index.
func (c *Catalog) Snapshot() registry.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Snapshot()
}

// Resolve resolves an indirect reference. It never reloads.
func (c *Catalog) Resolve(ctx context.Context, ref *reference.Ref) (*domain.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolver.Resolve(ctx, ref)
}

// ResolveSelection resolves a Selection, pruning stale entries.
func (c *Catalog) ResolveSelection(sel *reference.Selection) []*domain.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sel.ResolvedItems(c.registry)
}

// Owner returns where the enforcer index places id.
func (c *Catalog) Owner(id identity.ID) (storage.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enforcer.Owner(id)
}

func (c *Catalog) publishReport(report enforcer.Report) {
	for _, loc := range report.Assigned {
		id := identity.Nil
		if obj, ok := c.db.Get(loc); ok {
			id = obj.ID()
		}
		c.publish(EventAssigned, Event{ID: id, Location: loc})
	}
	for _, r := range report.Repaired {
		c.publish(EventRepaired, Event{ID: r.New, Previous: r.Old, Location: r.Location, Owner: r.Owner})
	}
}
