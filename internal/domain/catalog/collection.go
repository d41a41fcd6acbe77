package catalog

import (
	"fmt"
	"slices"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

// RecordSource supplies the candidates a Collection refresh filters.
type RecordSource interface {
	// RecordsOf returns every loaded Record of the given type tag.
	RecordsOf(tag storage.TypeTag) ([]*Record, error)

	// IsNestedUnder reports whether loc is filed under ancestor.
	IsNestedUnder(loc, ancestor storage.Location) bool
}

// RefreshResult summarizes what a refresh changed.
type RefreshResult struct {
	Added   []*Record
	Removed []*Record
	// Misplaced are Records that name this Collection as owner but are
	// stored outside its location, and were therefore not adopted.
	Misplaced []*Record
}

// Changed reports whether the sequence was modified.
func (r RefreshResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Collection is an ordered, deduplicated sequence of Records.
type Collection struct {
	id       identity.ID
	kind     Kind
	location storage.Location
	payload  map[string]any
	records  []*Record

	// byID caches Find lookups; nil when stale.
	byID map[identity.ID]*Record

	readOnly  bool
	destroyed bool
}

// NewCollection creates a Collection from its stored form.
func NewCollection(loc storage.Location, kind Kind, asset *storage.Asset) *Collection {
	c := &Collection{location: loc, kind: kind}
	c.apply(asset)
	return c
}

func (c *Collection) apply(asset *storage.Asset) {
	if asset == nil {
		return
	}
	c.id = asset.ID
	c.payload = asset.Payload
}

// ID returns the Collection's Identifier.
func (c *Collection) ID() identity.ID {
	return c.id
}

// Kind returns the Collection's registered kind.
func (c *Collection) Kind() Kind {
	return c.kind
}

// Location returns where the Collection is stored.
func (c *Collection) Location() storage.Location {
	return c.location
}

// Payload returns the opaque domain fields.
func (c *Collection) Payload() map[string]any {
	return c.payload
}

// Name returns payload["name"] when set, otherwise the location's base name.
func (c *Collection) Name() string {
	return displayName(c.payload, c.location)
}

// IsDestroyed reports whether the backing asset was deleted.
func (c *Collection) IsDestroyed() bool {
	return c == nil || c.destroyed
}

// IsReadOnly reports whether structural mutation is rejected.
func (c *Collection) IsReadOnly() bool {
	return c.readOnly
}

// SetReadOnly toggles run-time (read-only) mode.
func (c *Collection) SetReadOnly(readOnly bool) {
	c.readOnly = readOnly
}

// Count returns the number of Records in the sequence.
func (c *Collection) Count() int {
	return len(c.records)
}

// At returns the Record at index i.
func (c *Collection) At(i int) (*Record, error) {
	if i < 0 || i >= len(c.records) {
		return nil, fmt.Errorf("%w: %d (count %d)", ErrIndexOutOfRange, i, len(c.records))
	}
	return c.records[i], nil
}

// Records returns a copy of the sequence in order.
func (c *Collection) Records() []*Record {
	return slices.Clone(c.records)
}

// Contains reports whether r is in the sequence (by reference).
func (c *Collection) Contains(r *Record) bool {
	return c.IndexOf(r) >= 0
}

// IndexOf returns the position of r, or -1.
func (c *Collection) IndexOf(r *Record) int {
	if r == nil {
		return -1
	}
	return slices.Index(c.records, r)
}

// Find returns the Record with the given Identifier.
func (c *Collection) Find(id identity.ID) (*Record, bool) {
	if !id.IsValid() {
		return nil, false
	}
	if r, ok := c.lookup(id); ok {
		return r, true
	}
	// Identifiers can be regenerated behind the index's back; rebuild once.
	c.byID = nil
	return c.lookup(id)
}

func (c *Collection) lookup(id identity.ID) (*Record, bool) {
	if c.byID == nil {
		c.byID = make(map[identity.ID]*Record, len(c.records))
		for _, r := range c.records {
			if r.IsDestroyed() {
				continue
			}
			if _, dup := c.byID[r.ID()]; !dup {
				c.byID[r.ID()] = r
			}
		}
	}
	r, ok := c.byID[id]
	if !ok || r.IsDestroyed() || r.ID() != id {
		return nil, false
	}
	return r, true
}

// Add appends r, attaching it to this Collection if it has no owner yet.
func (c *Collection) Add(r *Record) error {
	return c.Insert(len(c.records), r)
}

// Insert places r at index i, attaching it if it has no owner yet.
func (c *Collection) Insert(i int, r *Record) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if r == nil {
		return ErrNilRecord
	}
	if r.IsDestroyed() {
		return ErrDestroyed
	}
	if i < 0 || i > len(c.records) {
		return fmt.Errorf("%w: %d (count %d)", ErrIndexOutOfRange, i, len(c.records))
	}
	if c.Contains(r) {
		return ErrDuplicateRecord
	}
	if err := r.AttachTo(c.id); err != nil {
		return fmt.Errorf("attach %s to %s: %w", r.Location(), c.location, err)
	}
	c.records = slices.Insert(c.records, i, r)
	c.byID = nil
	return nil
}

// RemoveAt removes the Record at index i and returns it.
func (c *Collection) RemoveAt(i int) (*Record, error) {
	if err := c.checkMutable(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(c.records) {
		return nil, fmt.Errorf("%w: %d (count %d)", ErrIndexOutOfRange, i, len(c.records))
	}
	r := c.records[i]
	c.records = slices.Delete(c.records, i, i+1)
	c.byID = nil
	return r, nil
}

// Swap exchanges the Records at i and j.
func (c *Collection) Swap(i, j int) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	n := len(c.records)
	if i < 0 || i >= n || j < 0 || j >= n {
		return fmt.Errorf("%w: swap %d,%d (count %d)", ErrIndexOutOfRange, i, j, n)
	}
	c.records[i], c.records[j] = c.records[j], c.records[i]
	return nil
}

// Prune drops destroyed Records from the sequence. It is bookkeeping after
// a storage deletion, not a structural edit, so it is allowed read-only.
func (c *Collection) Prune() []*Record {
	var removed []*Record
	c.records = slices.DeleteFunc(c.records, func(r *Record) bool {
		if r.IsDestroyed() {
			removed = append(removed, r)
			return true
		}
		return false
	})
	if len(removed) > 0 {
		c.byID = nil
	}
	return removed
}

// Refresh reconciles the sequence with the store:
//  1. enumerate candidates of this Collection's Record tag;
//  2. keep those whose back-reference is this Collection and whose location
//     is nested under the Collection's own location;
//  3. drop destroyed and duplicate entries, preserving first-seen order.
//
// Existing entries are subject to the same filters, so a Record whose
// back-reference no longer names this Collection is dropped rather than
// repaired.
func (c *Collection) Refresh(src RecordSource) (RefreshResult, error) {
	var result RefreshResult

	candidates, err := src.RecordsOf(c.kind.Record)
	if err != nil {
		return result, fmt.Errorf("enumerate %s records: %w", c.kind.Record, err)
	}

	accept := func(r *Record) bool {
		return r != nil && !r.IsDestroyed() &&
			r.Collection() == c.id &&
			src.IsNestedUnder(r.Location(), c.location)
	}

	seen := make(map[*Record]bool, len(c.records)+len(candidates))
	next := make([]*Record, 0, len(c.records))

	for _, r := range c.records {
		if seen[r] {
			continue
		}
		if !accept(r) {
			if r != nil {
				result.Removed = append(result.Removed, r)
			}
			continue
		}
		seen[r] = true
		next = append(next, r)
	}

	for _, r := range candidates {
		if r == nil || seen[r] || r.IsDestroyed() || r.Collection() != c.id {
			continue
		}
		if !src.IsNestedUnder(r.Location(), c.location) {
			result.Misplaced = append(result.Misplaced, r)
			continue
		}
		seen[r] = true
		next = append(next, r)
		result.Added = append(result.Added, r)
	}

	c.records = next
	c.byID = nil
	return result, nil
}

// AssignIdentifier gives an unassigned Collection its first Identifier.
func (c *Collection) AssignIdentifier(id identity.ID) error {
	if !id.IsValid() {
		return ErrInvalidIdentifier
	}
	if c.id.IsValid() {
		return ErrUnsupportedMutation
	}
	c.id = id
	return nil
}

// RegenerateIdentifier replaces the Identifier wholesale and returns it.
// Records keep naming the old value, so after regeneration they no longer
// belong to this Collection; this is how a duplicated Collection asset
// separates from the original.
func (c *Collection) RegenerateIdentifier() identity.ID {
	c.id = identity.Regenerate(c.id)
	return c.id
}

// Asset returns the stored form of the Collection.
func (c *Collection) Asset() *storage.Asset {
	return &storage.Asset{
		Tag:     c.kind.Collection,
		ID:      c.id,
		Payload: c.payload,
	}
}

// Reimport refreshes the Collection in place from a newly loaded asset.
func (c *Collection) Reimport(asset *storage.Asset) {
	c.apply(asset)
	c.destroyed = false
}

// Relocate records that the backing asset moved.
func (c *Collection) Relocate(loc storage.Location) {
	c.location = loc
}

// Destroy marks the Collection as deleted from storage.
func (c *Collection) Destroy() {
	c.destroyed = true
}

func (c *Collection) checkMutable() error {
	if c.readOnly {
		return ErrUnsupportedMutation
	}
	if c.destroyed {
		return ErrDestroyed
	}
	return nil
}
