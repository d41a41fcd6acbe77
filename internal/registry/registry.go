// Package registry indexes Collections by Identifier.
//
// The Registry is rebuilt from storage rather than persisted. Reload
// enumerates every registered Collection kind, refreshes each Collection's
// Record sequence and registers it. Lookups check for staleness first: the
// known-Collection set and the known-Identifier set must agree in size and,
// after an invalidation, in membership; otherwise the Registry reloads before
// answering.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zjrosen/catalog/internal/assets"
	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// Registry errors
var (
	ErrIdentifierTaken = errors.New("identifier already registered to another collection")
	ErrNilCollection   = errors.New("collection cannot be nil")
)

// ReloadResult describes what a Reload changed.
type ReloadResult struct {
	Registered   []*catalog.Collection
	Unregistered []*catalog.Collection
	// Skipped lists Collection locations left out of the index because
	// their Identifier was invalid or already taken.
	Skipped   []storage.Location
	Misplaced []*catalog.Record
	Records   int
}

// Registry is the index from Collection Identifier to Collection.
type Registry struct {
	db *assets.Database

	known map[*catalog.Collection]identity.ID
	ids   map[identity.ID]*catalog.Collection

	initialized bool
	dirty       bool
	readOnly    bool
	held        bool
	reloads     int
}

// New creates an empty Registry over db. It loads on first access.
func New(db *assets.Database) *Registry {
	return &Registry{
		db:    db,
		known: make(map[*catalog.Collection]identity.ID),
		ids:   make(map[identity.ID]*catalog.Collection),
	}
}

// SetReadOnly switches every known Collection, and every Collection
// registered later, into or out of run-time mode.
func (r *Registry) SetReadOnly(readOnly bool) {
	r.readOnly = readOnly
	for c := range r.known {
		c.SetReadOnly(readOnly)
	}
}

// IsReadOnly reports whether the Registry hands out read-only Collections.
func (r *Registry) IsReadOnly() bool {
	return r.readOnly
}

// Reloads returns how many times Reload has run.
func (r *Registry) Reloads() int {
	return r.reloads
}

// SetHeld suspends staleness reloads. While held, lookups answer from the
// current index even when it is stale; an explicit Reload still runs.
func (r *Registry) SetHeld(held bool) {
	r.held = held
}

// Invalidate forces a membership check on the next lookup. Call it after
// Identifiers may have changed outside the Registry.
func (r *Registry) Invalidate() {
	r.dirty = true
}

// GetByID returns the Collection with the given Identifier.
func (r *Registry) GetByID(id identity.ID) (*catalog.Collection, bool) {
	if !id.IsValid() {
		return nil, false
	}
	r.ensureFresh()
	return r.Collection(id)
}

// Collection looks id up without the staleness check, so it never reloads.
func (r *Registry) Collection(id identity.ID) (*catalog.Collection, bool) {
	c, ok := r.ids[id]
	if !ok || c.IsDestroyed() || c.ID() != id {
		return nil, false
	}
	return c, true
}

// Collections returns every known Collection in location order.
func (r *Registry) Collections() []*catalog.Collection {
	r.ensureFresh()
	return r.sorted()
}

// Len returns the number of known Collections.
func (r *Registry) Len() int {
	return len(r.known)
}

func (r *Registry) sorted() []*catalog.Collection {
	out := make([]*catalog.Collection, 0, len(r.known))
	for c := range r.known {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Location() < out[j].Location() })
	return out
}

// IsKnown reports whether c is registered.
func (r *Registry) IsKnown(c *catalog.Collection) bool {
	_, ok := r.known[c]
	return ok
}

// Register adds a single Collection without a full reload.
func (r *Registry) Register(c *catalog.Collection) error {
	if c == nil {
		return ErrNilCollection
	}
	if c.IsDestroyed() {
		return catalog.ErrDestroyed
	}
	id := c.ID()
	if !id.IsValid() {
		return fmt.Errorf("register %s: %w", c.Location(), catalog.ErrInvalidIdentifier)
	}
	if other, taken := r.ids[id]; taken && other != c {
		return fmt.Errorf("register %s: %w (%s)", c.Location(), ErrIdentifierTaken, other.Location())
	}
	if old, ok := r.known[c]; ok && old != id {
		delete(r.ids, old)
	}
	r.known[c] = id
	r.ids[id] = c
	c.SetReadOnly(r.readOnly)
	r.initialized = true
	log.Debug(log.CatRegistry, "Registered collection", "id", id, "location", c.Location())
	return nil
}

// Unregister removes c. It reports whether c was known.
func (r *Registry) Unregister(c *catalog.Collection) bool {
	id, ok := r.known[c]
	if !ok {
		return false
	}
	delete(r.known, c)
	if r.ids[id] == c {
		delete(r.ids, id)
	}
	log.Debug(log.CatRegistry, "Unregistered collection", "id", id, "location", c.Location())
	return true
}

// Stale reports whether the known sets have diverged.
func (r *Registry) Stale() bool {
	if !r.initialized {
		return true
	}
	if len(r.known) != len(r.ids) {
		return true
	}
	if !r.dirty {
		return false
	}
	for c, id := range r.known {
		if c.IsDestroyed() || c.ID() != id || r.ids[id] != c {
			return true
		}
	}
	return false
}

func (r *Registry) ensureFresh() {
	if !r.Stale() {
		r.dirty = false
		return
	}
	if r.held && r.initialized {
		log.Debug(log.CatRegistry, "Stale index reload held")
		return
	}
	if _, err := r.Reload(); err != nil {
		log.ErrorErr(log.CatRegistry, "Reload on stale index failed", err)
	}
}

// Reload rebuilds the index from storage. Each enumerated Collection is
// refreshed, then registered. Collections with an invalid Identifier, or
// one already taken by a Collection earlier in location order, are skipped.
func (r *Registry) Reload() (ReloadResult, error) {
	var result ReloadResult

	collections, err := r.db.Collections()
	if err != nil {
		return result, fmt.Errorf("enumerate collections: %w", err)
	}

	previous := r.known
	r.known = make(map[*catalog.Collection]identity.ID, len(collections))
	r.ids = make(map[identity.ID]*catalog.Collection, len(collections))
	r.initialized = true
	r.dirty = false
	r.reloads++

	for _, c := range collections {
		id := c.ID()
		if !id.IsValid() {
			log.Warn(log.CatRegistry, "Skipping collection without identifier", "location", c.Location())
			result.Skipped = append(result.Skipped, c.Location())
			continue
		}
		if other, taken := r.ids[id]; taken {
			log.Warn(log.CatRegistry, "Skipping collection with duplicate identifier",
				"id", id, "location", c.Location(), "owner", other.Location())
			result.Skipped = append(result.Skipped, c.Location())
			continue
		}

		refresh, err := c.Refresh(r.db)
		if err != nil {
			log.ErrorErr(log.CatRegistry, "Refresh failed", err, "location", c.Location())
		}
		for _, m := range refresh.Misplaced {
			log.Warn(log.CatRegistry, "Record claims collection but is filed elsewhere",
				"record", m.Location(), "collection", c.Location())
		}
		result.Misplaced = append(result.Misplaced, refresh.Misplaced...)
		result.Records += c.Count()

		r.known[c] = id
		r.ids[id] = c
		c.SetReadOnly(r.readOnly)
		if _, existed := previous[c]; !existed {
			result.Registered = append(result.Registered, c)
		}
	}

	for c := range previous {
		if _, still := r.known[c]; !still {
			result.Unregistered = append(result.Unregistered, c)
		}
	}
	sort.Slice(result.Unregistered, func(i, j int) bool {
		return result.Unregistered[i].Location() < result.Unregistered[j].Location()
	})

	log.Info(log.CatRegistry, "Reloaded",
		"collections", len(r.known), "records", result.Records,
		"registered", len(result.Registered), "unregistered", len(result.Unregistered))
	return result, nil
}

// Refresh re-runs the refresh algorithm on every known Collection without
// re-enumerating Collections.
func (r *Registry) Refresh() (int, error) {
	changed := 0
	var errs []error
	for _, c := range r.sorted() {
		res, err := c.Refresh(r.db)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Changed() {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// Owner returns the registered Collection that a Record names as owner.
func (r *Registry) Owner(rec *catalog.Record) (*catalog.Collection, bool) {
	if rec == nil {
		return nil, false
	}
	return r.Collection(rec.Collection())
}
