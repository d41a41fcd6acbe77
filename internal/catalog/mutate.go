package catalog

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/tracing"
)

// ErrUnknownCollection is returned by mutations that name a Collection the
// Registry does not know.
var ErrUnknownCollection = errors.New("unknown collection")

func (c *Catalog) checkWritable() error {
	if c.closed {
		return ErrClosed
	}
	if c.opts.ReadOnly {
		return domain.ErrUnsupportedMutation
	}
	return nil
}

// CreateCollection writes a new Collection asset of the given kind with a
// fresh Identifier and registers it.
func (c *Catalog) CreateCollection(ctx context.Context, tag storage.TypeTag, loc storage.Location, payload map[string]any) (*domain.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return nil, err
	}
	if !c.kinds.IsCollectionTag(tag) {
		return nil, fmt.Errorf("%w: %q is not a collection kind", domain.ErrUnknownKind, tag)
	}

	obj, err := c.db.Create(loc, &storage.Asset{Tag: tag, ID: c.freshID(), Payload: payload})
	if err != nil {
		return nil, err
	}
	c.enforcer.Apply(storage.ChangeBatch{Imported: []storage.Location{loc}})

	col := obj.(*domain.Collection)
	if _, err := col.Refresh(c.db); err != nil {
		log.ErrorErr(log.CatCatalog, "Refresh of new collection failed", err, "location", loc)
	}
	if err := c.registry.Register(col); err != nil {
		return nil, fmt.Errorf("register %s: %w", loc, err)
	}
	c.publish(EventRegistered, Event{ID: col.ID(), Location: loc, Records: col.Count()})
	log.Info(log.CatCatalog, "Created collection", "id", col.ID(), "location", loc)
	return col, nil
}

// CreateRecord writes a new Record owned by the Collection collectionID and
// appends it to that Collection. The location must be nested under the
// Collection's own location.
func (c *Catalog) CreateRecord(ctx context.Context, collectionID identity.ID, loc storage.Location, payload map[string]any) (*domain.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return nil, err
	}

	col, ok := c.registry.GetByID(collectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collectionID)
	}
	if !c.db.IsNestedUnder(loc, col.Location()) {
		return nil, fmt.Errorf("%w: %s is not nested under %s", domain.ErrOwnershipViolation, loc, col.Location())
	}

	obj, err := c.db.Create(loc, &storage.Asset{
		Tag:        col.Kind().Record,
		ID:         c.freshID(),
		Collection: col.ID(),
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	c.enforcer.Apply(storage.ChangeBatch{Imported: []storage.Location{loc}})

	rec := obj.(*domain.Record)
	if err := col.Add(rec); err != nil {
		return nil, fmt.Errorf("add %s to %s: %w", loc, col.Location(), err)
	}
	log.Info(log.CatCatalog, "Created record", "id", rec.ID(), "location", loc, "collection", col.Location())
	return rec, nil
}

// DeleteCollection deletes the Collection's asset and unregisters it. With
// cascade delete enabled its Records are deleted too.
func (c *Catalog) DeleteCollection(ctx context.Context, id identity.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkWritable(); err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, tracing.SpanDelete)
	defer span.End()

	col, ok := c.registry.GetByID(id)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownCollection, id)
		tracing.RecordError(span, err)
		return err
	}
	span.SetAttributes(tracing.String(tracing.AttrCollection, id.String()))

	if err := c.db.Delete(col.Location()); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	report := c.enforcer.Apply(storage.ChangeBatch{Deleted: []storage.Location{col.Location()}})
	if len(report.Destroyed) == 0 {
		// The object was already forgotten by Delete; drop it explicitly.
		report.Destroyed = append(report.Destroyed, col)
	}
	c.dropDestroyed(ctx, report.Destroyed)
	log.Info(log.CatCatalog, "Deleted collection", "id", id, "location", col.Location(), "cascade", c.opts.CascadeDelete)
	return nil
}

// cascade deletes every stored Record that names col as owner.
func (c *Catalog) cascade(ctx context.Context, col *domain.Collection) {
	if c.opts.ReadOnly {
		log.Warn(log.CatCatalog, "Skipping cascade delete in read-only mode", "collection", col.Location())
		return
	}
	records, err := c.db.RecordsOf(col.Kind().Record)
	if err != nil {
		log.ErrorErr(log.CatCatalog, "Cascade could not enumerate records", err, "collection", col.Location())
		return
	}

	var deleted []storage.Location
	for _, rec := range records {
		if rec.Collection() != col.ID() {
			continue
		}
		if err := c.db.Delete(rec.Location()); err != nil {
			log.ErrorErr(log.CatCatalog, "Cascade delete failed", err, "record", rec.Location())
			continue
		}
		deleted = append(deleted, rec.Location())
	}
	if len(deleted) == 0 {
		return
	}
	c.enforcer.Apply(storage.ChangeBatch{Deleted: deleted})
	log.Info(log.CatCatalog, "Cascade deleted records", "collection", col.Location(), "count", len(deleted))
}

func (c *Catalog) freshID() identity.ID {
	id := identity.New()
	for {
		if _, taken := c.enforcer.Owner(id); !taken {
			return id
		}
		id = identity.New()
	}
}
