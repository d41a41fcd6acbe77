// Package assets keeps one in-memory object per stored asset.
//
// The Database is an identity map over a storage.Store: loading the same
// location twice yields the same *catalog.Record or *catalog.Collection, so
// handles cached elsewhere (indirect references, selections, collection
// sequences) stay valid across reloads. Re-imports refresh objects in place,
// deletions mark them destroyed, and moves re-key them.
package assets

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// Database is the identity map of loaded assets.
type Database struct {
	store       storage.Store
	kinds       *catalog.Kinds
	records     map[storage.Location]*catalog.Record
	collections map[storage.Location]*catalog.Collection
}

// New creates a Database over store for the registered kinds.
func New(store storage.Store, kinds *catalog.Kinds) *Database {
	return &Database{
		store:       store,
		kinds:       kinds,
		records:     make(map[storage.Location]*catalog.Record),
		collections: make(map[storage.Location]*catalog.Collection),
	}
}

var _ catalog.RecordSource = (*Database)(nil)

// Store returns the underlying storage provider.
func (db *Database) Store() storage.Store {
	return db.store
}

// Kinds returns the registration table.
func (db *Database) Kinds() *catalog.Kinds {
	return db.kinds
}

// Get returns the already-loaded object at loc without touching storage.
func (db *Database) Get(loc storage.Location) (catalog.Object, bool) {
	if r, ok := db.records[loc]; ok {
		return r, true
	}
	if c, ok := db.collections[loc]; ok {
		return c, true
	}
	return nil, false
}

// LocationOf returns where obj is stored.
func (db *Database) LocationOf(obj catalog.Object) storage.Location {
	return obj.Location()
}

// Load returns the object at loc, importing it on first access.
func (db *Database) Load(loc storage.Location) (catalog.Object, error) {
	if obj, ok := db.Get(loc); ok {
		return obj, nil
	}
	return db.Import(loc)
}

// Import reads the asset at loc and refreshes (or creates) its object.
func (db *Database) Import(loc storage.Location) (catalog.Object, error) {
	asset, err := db.store.Load(loc)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", loc, err)
	}

	switch {
	case db.kinds.IsRecordTag(asset.Tag):
		if _, wasCollection := db.collections[loc]; wasCollection {
			db.forget(loc)
		}
		if r, ok := db.records[loc]; ok {
			r.Reimport(asset)
			return r, nil
		}
		r := catalog.NewRecord(loc, asset)
		db.records[loc] = r
		return r, nil

	case db.kinds.IsCollectionTag(asset.Tag):
		if _, wasRecord := db.records[loc]; wasRecord {
			db.forget(loc)
		}
		if c, ok := db.collections[loc]; ok {
			c.Reimport(asset)
			return c, nil
		}
		kind, _ := db.kinds.ForCollection(asset.Tag)
		c := catalog.NewCollection(loc, kind, asset)
		db.collections[loc] = c
		return c, nil

	default:
		return nil, fmt.Errorf("%s: %w: %q", loc, catalog.ErrUnknownKind, asset.Tag)
	}
}

// LoadRecord loads loc and requires it to be a Record.
func (db *Database) LoadRecord(loc storage.Location) (*catalog.Record, error) {
	obj, err := db.Load(loc)
	if err != nil {
		return nil, err
	}
	r, ok := obj.(*catalog.Record)
	if !ok {
		return nil, fmt.Errorf("%s is not a record", loc)
	}
	return r, nil
}

// LoadCollection loads loc and requires it to be a Collection.
func (db *Database) LoadCollection(loc storage.Location) (*catalog.Collection, error) {
	obj, err := db.Load(loc)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*catalog.Collection)
	if !ok {
		return nil, fmt.Errorf("%s is not a collection", loc)
	}
	return c, nil
}

// RecordsOf enumerates and loads every Record of tag, in location order.
// Cached Records of tag that storage no longer lists are destroyed, so a
// missed delete notification heals on the next enumeration.
func (db *Database) RecordsOf(tag storage.TypeTag) ([]*catalog.Record, error) {
	locs, err := db.store.Enumerate(tag)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", tag, err)
	}

	present := make(map[storage.Location]bool, len(locs))
	records := make([]*catalog.Record, 0, len(locs))
	for _, loc := range locs {
		present[loc] = true
		r, err := db.LoadRecord(loc)
		if err != nil {
			log.ErrorErr(log.CatStore, "Skipping unreadable record", err, "location", loc)
			continue
		}
		records = append(records, r)
	}

	for loc, r := range db.records {
		if r.Tag() == tag && !present[loc] {
			log.Debug(log.CatStore, "Record vanished from storage", "location", loc)
			db.forget(loc)
		}
	}
	return records, nil
}

// PeekRecords lists every stored Record of tag in location order without
// touching the identity map. Cached Records are returned as they are;
// uncached ones are read into detached objects that are never kept.
func (db *Database) PeekRecords(tag storage.TypeTag) ([]*catalog.Record, error) {
	locs, err := db.store.Enumerate(tag)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", tag, err)
	}

	records := make([]*catalog.Record, 0, len(locs))
	for _, loc := range locs {
		if r, ok := db.records[loc]; ok && !r.IsDestroyed() {
			records = append(records, r)
			continue
		}
		asset, err := db.store.Load(loc)
		if err != nil {
			log.ErrorErr(log.CatStore, "Skipping unreadable record", err, "location", loc)
			continue
		}
		if asset.Tag != tag {
			continue
		}
		records = append(records, catalog.NewRecord(loc, asset))
	}
	return records, nil
}

// Collections enumerates and loads every Collection of every registered
// kind, in location order.
func (db *Database) Collections() ([]*catalog.Collection, error) {
	var all []*catalog.Collection
	present := make(map[storage.Location]bool)

	for _, kind := range db.kinds.List() {
		locs, err := db.store.Enumerate(kind.Collection)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", kind.Collection, err)
		}
		for _, loc := range locs {
			present[loc] = true
			c, err := db.LoadCollection(loc)
			if err != nil {
				log.ErrorErr(log.CatStore, "Skipping unreadable collection", err, "location", loc)
				continue
			}
			all = append(all, c)
		}
	}

	for loc := range db.collections {
		if !present[loc] {
			log.Debug(log.CatStore, "Collection vanished from storage", "location", loc)
			db.forget(loc)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Location() < all[j].Location() })
	return all, nil
}

// Locations enumerates the locations of every registered tag, sorted and
// without duplicates.
func (db *Database) Locations() ([]storage.Location, error) {
	seen := make(map[storage.Location]bool)
	var locs []storage.Location
	for _, tag := range db.kinds.Tags() {
		tagged, err := db.store.Enumerate(tag)
		if err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", tag, err)
		}
		for _, loc := range tagged {
			if !seen[loc] {
				seen[loc] = true
				locs = append(locs, loc)
			}
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs, nil
}

// IsNestedUnder delegates to the store's locality rule.
func (db *Database) IsNestedUnder(loc, ancestor storage.Location) bool {
	return db.store.IsNestedUnder(loc, ancestor)
}

// Exists reports whether storage still holds an asset at loc.
func (db *Database) Exists(loc storage.Location) bool {
	return storage.Exists(db.store, loc)
}

// MarkDirty writes obj back to storage.
func (db *Database) MarkDirty(obj catalog.Object) error {
	if obj.IsDestroyed() {
		return catalog.ErrDestroyed
	}
	if err := db.store.Save(obj.Location(), obj.Asset()); err != nil {
		return fmt.Errorf("save %s: %w", obj.Location(), err)
	}
	return nil
}

// Create writes a new asset and loads it.
func (db *Database) Create(loc storage.Location, asset *storage.Asset) (catalog.Object, error) {
	if storage.Exists(db.store, loc) {
		return nil, fmt.Errorf("%w: %s", storage.ErrExists, loc)
	}
	if !db.kinds.IsRecordTag(asset.Tag) && !db.kinds.IsCollectionTag(asset.Tag) {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownKind, asset.Tag)
	}
	if err := db.store.Save(loc, asset); err != nil {
		return nil, fmt.Errorf("save %s: %w", loc, err)
	}
	return db.Import(loc)
}

// Delete removes the asset at loc from storage and destroys its object.
func (db *Database) Delete(loc storage.Location) error {
	if err := db.store.Delete(loc); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", loc, err)
	}
	db.forget(loc)
	return nil
}

// Forget destroys the object at loc after its asset was deleted externally.
// It returns the destroyed object, if one was loaded.
func (db *Database) Forget(loc storage.Location) (catalog.Object, bool) {
	obj, ok := db.Get(loc)
	if !ok {
		return nil, false
	}
	db.forget(loc)
	return obj, true
}

func (db *Database) forget(loc storage.Location) {
	if r, ok := db.records[loc]; ok {
		r.Destroy()
		delete(db.records, loc)
	}
	if c, ok := db.collections[loc]; ok {
		c.Destroy()
		delete(db.collections, loc)
	}
}

// Rename re-keys the object that moved from one location to another and
// re-imports it at the destination. The object keeps its identity.
func (db *Database) Rename(from, to storage.Location) (catalog.Object, error) {
	if r, ok := db.records[from]; ok {
		delete(db.records, from)
		db.forget(to)
		r.Relocate(to)
		db.records[to] = r
	}
	if c, ok := db.collections[from]; ok {
		delete(db.collections, from)
		db.forget(to)
		c.Relocate(to)
		db.collections[to] = c
	}
	return db.Import(to)
}

// Move relocates an asset in storage and re-keys its object.
func (db *Database) Move(from, to storage.Location) (catalog.Object, error) {
	if err := db.store.Move(from, to); err != nil {
		return nil, fmt.Errorf("move %s -> %s: %w", from, to, err)
	}
	return db.Rename(from, to)
}

// Len returns the number of loaded objects.
func (db *Database) Len() int {
	return len(db.records) + len(db.collections)
}
