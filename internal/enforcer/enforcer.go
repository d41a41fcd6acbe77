// Package enforcer keeps Identifiers unique across the store.
//
// The Enforcer owns an index from Identifier to the location of the asset
// that currently owns it. It consumes storage ChangeBatches, assigns fresh
// Identifiers to new assets, and regenerates the Identifier of any asset
// that shows up carrying an Identifier already owned by another location
// (the typical result of copying a file). It never fails outward: problems
// are repaired and logged, and every pass is safe to re-run.
package enforcer

import (
	"errors"
	"slices"

	"github.com/zjrosen/catalog/internal/assets"
	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// Repair records one regenerated Identifier.
type Repair struct {
	Location storage.Location
	Old      identity.ID
	New      identity.ID
	// Owner is the location that kept Old.
	Owner storage.Location
}

// Report summarizes one enforcement pass.
type Report struct {
	Assigned []storage.Location
	Repaired []Repair
	Moved    []storage.Move
	Removed  []storage.Location
	// Destroyed holds the in-memory objects whose assets were deleted.
	Destroyed []catalog.Object
	// Touched holds every object loaded or relocated by the pass.
	Touched []catalog.Object
	Rebuilt bool
}

// Changed reports whether any Identifier was assigned or regenerated.
func (r Report) Changed() bool {
	return len(r.Assigned) > 0 || len(r.Repaired) > 0
}

// Enforcer maintains the Identifier index.
type Enforcer struct {
	db    *assets.Database
	index map[identity.ID]storage.Location
	byLoc map[storage.Location]identity.ID
	built bool
}

// New creates an Enforcer with an unbuilt index.
func New(db *assets.Database) *Enforcer {
	return &Enforcer{
		db:    db,
		index: make(map[identity.ID]storage.Location),
		byLoc: make(map[storage.Location]identity.ID),
	}
}

// Built reports whether the index has been built.
func (e *Enforcer) Built() bool {
	return e.built
}

// Len returns the number of indexed Identifiers.
func (e *Enforcer) Len() int {
	return len(e.index)
}

// Owner returns the location that owns id.
func (e *Enforcer) Owner(id identity.ID) (storage.Location, bool) {
	loc, ok := e.index[id]
	return loc, ok
}

// Reset drops the index; the next pass rebuilds it.
func (e *Enforcer) Reset() {
	e.index = make(map[identity.ID]storage.Location)
	e.byLoc = make(map[storage.Location]identity.ID)
	e.built = false
}

// Rebuild scans every registered asset in location order and rebuilds the
// index. The first location seen keeps an Identifier; later duplicates are
// regenerated, and unassigned assets get a fresh Identifier.
func (e *Enforcer) Rebuild() Report {
	var report Report
	e.rebuild(&report)
	return report
}

func (e *Enforcer) rebuild(report *Report) {
	e.Reset()
	e.built = true
	report.Rebuilt = true

	locs, err := e.db.Locations()
	if err != nil {
		log.ErrorErr(log.CatEnforcer, "Index rebuild could not enumerate assets", err)
		return
	}
	for _, loc := range locs {
		obj, err := e.db.Import(loc)
		if err != nil {
			log.ErrorErr(log.CatEnforcer, "Skipping unreadable asset", err, "location", loc)
			continue
		}
		report.Touched = append(report.Touched, obj)

		id := obj.ID()
		switch owner, taken := e.index[id]; {
		case !id.IsValid():
			e.assign(obj, report)
		case taken:
			e.regenerate(obj, owner, report)
		default:
			e.put(id, loc)
		}
	}
	log.Info(log.CatEnforcer, "Rebuilt identifier index",
		"indexed", len(e.index), "assigned", len(report.Assigned), "repaired", len(report.Repaired))
}

// Apply processes one batch of storage changes. Deletions go first, then
// moves, then imports in location order.
func (e *Enforcer) Apply(batch storage.ChangeBatch) Report {
	var report Report

	for _, loc := range batch.Deleted {
		e.deleted(loc, &report)
	}

	if !e.built && (len(batch.Imported) > 0 || len(batch.Moved) > 0) {
		for _, m := range batch.Moved {
			e.renameObject(m, &report)
		}
		e.rebuild(&report)
		return report
	}

	for _, m := range batch.Moved {
		e.moved(m, &report)
	}

	imported := slices.Clone(batch.Imported)
	slices.Sort(imported)
	imported = slices.Compact(imported)
	for _, loc := range imported {
		e.imported(loc, &report)
	}

	if len(report.Assigned) > 0 || len(report.Repaired) > 0 {
		log.Info(log.CatEnforcer, "Processed changes",
			"assigned", len(report.Assigned), "repaired", len(report.Repaired),
			"moved", len(report.Moved), "removed", len(report.Removed))
	}
	return report
}

func (e *Enforcer) deleted(loc storage.Location, report *Report) {
	if id, ok := e.byLoc[loc]; ok {
		delete(e.byLoc, loc)
		// Only drop the mapping if it still points here; a rename may
		// already have re-pointed it.
		if e.index[id] == loc {
			delete(e.index, id)
		}
	}
	if obj, ok := e.db.Forget(loc); ok {
		report.Destroyed = append(report.Destroyed, obj)
	}
	report.Removed = append(report.Removed, loc)
}

func (e *Enforcer) renameObject(m storage.Move, report *Report) (catalog.Object, bool) {
	obj, err := e.db.Rename(m.From, m.To)
	if err != nil {
		log.ErrorErr(log.CatEnforcer, "Skipping unreadable moved asset", err, "from", m.From, "to", m.To)
		return nil, false
	}
	report.Moved = append(report.Moved, m)
	report.Touched = append(report.Touched, obj)
	return obj, true
}

func (e *Enforcer) moved(m storage.Move, report *Report) {
	if id, ok := e.byLoc[m.From]; ok {
		delete(e.byLoc, m.From)
		if e.index[id] == m.From {
			delete(e.index, id)
		}
	}
	obj, ok := e.renameObject(m, report)
	if !ok {
		return
	}
	e.accept(obj, report)
}

func (e *Enforcer) imported(loc storage.Location, report *Report) {
	obj, err := e.db.Import(loc)
	if err != nil {
		log.ErrorErr(log.CatEnforcer, "Skipping unreadable asset", err, "location", loc)
		return
	}
	report.Touched = append(report.Touched, obj)
	e.accept(obj, report)
}

// accept indexes obj at its location, assigning or regenerating its
// Identifier as needed.
func (e *Enforcer) accept(obj catalog.Object, report *Report) {
	loc := obj.Location()
	id := obj.ID()

	if prev, ok := e.byLoc[loc]; ok && prev != id {
		delete(e.byLoc, loc)
		if e.index[prev] == loc {
			delete(e.index, prev)
		}
	}

	if !id.IsValid() {
		e.assign(obj, report)
		return
	}

	owner, taken := e.index[id]
	if !taken || owner == loc {
		e.put(id, loc)
		return
	}
	if !e.stillOwns(owner, id) {
		log.Warn(log.CatEnforcer, "Replacing stale index entry", "id", id, "stale", owner, "location", loc)
		delete(e.byLoc, owner)
		e.put(id, loc)
		return
	}
	e.regenerate(obj, owner, report)
}

// stillOwns reports whether the asset stored at owner still carries id.
func (e *Enforcer) stillOwns(owner storage.Location, id identity.ID) bool {
	asset, err := e.db.Store().Load(owner)
	if err != nil {
		return false
	}
	return asset.ID == id
}

func (e *Enforcer) assign(obj catalog.Object, report *Report) {
	id := e.fresh()
	if err := obj.AssignIdentifier(id); err != nil {
		log.ErrorErr(log.CatEnforcer, "Could not assign identifier", err, "location", obj.Location())
		return
	}
	e.persist(obj)
	e.put(id, obj.Location())
	report.Assigned = append(report.Assigned, obj.Location())
	log.Info(log.CatEnforcer, "Assigned identifier", "location", obj.Location(), "id", id)
}

func (e *Enforcer) regenerate(obj catalog.Object, owner storage.Location, report *Report) {
	old := obj.ID()
	id := obj.RegenerateIdentifier()
	for e.taken(id) {
		id = obj.RegenerateIdentifier()
	}
	e.persist(obj)
	e.put(id, obj.Location())
	report.Repaired = append(report.Repaired, Repair{Location: obj.Location(), Old: old, New: id, Owner: owner})
	log.Warn(log.CatEnforcer, "Duplicate identifier regenerated",
		"location", obj.Location(), "old", old, "new", id, "owner", owner)
}

func (e *Enforcer) persist(obj catalog.Object) {
	err := e.db.MarkDirty(obj)
	if errors.Is(err, storage.ErrReadOnly) {
		log.Debug(log.CatEnforcer, "Identifier kept in memory", "location", obj.Location())
		return
	}
	if err != nil {
		log.ErrorErr(log.CatEnforcer, "Could not write identifier back", err, "location", obj.Location())
	}
}

func (e *Enforcer) put(id identity.ID, loc storage.Location) {
	e.index[id] = loc
	e.byLoc[loc] = id
}

func (e *Enforcer) taken(id identity.ID) bool {
	_, ok := e.index[id]
	return ok
}

func (e *Enforcer) fresh() identity.ID {
	id := identity.New()
	for e.taken(id) {
		id = identity.New()
	}
	return id
}
