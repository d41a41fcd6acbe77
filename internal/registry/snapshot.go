package registry

import (
	"fmt"
	"strings"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

// Snapshot is a comparable description of the index: Collections in
// location order, each with its Records in sequence order.
type Snapshot []CollectionSnapshot

// CollectionSnapshot describes one registered Collection.
type CollectionSnapshot struct {
	ID       identity.ID
	Kind     storage.TypeTag
	Location storage.Location
	Records  []RecordSnapshot
}

// RecordSnapshot describes one Record in a sequence.
type RecordSnapshot struct {
	ID       identity.ID
	Location storage.Location
}

// Snapshot captures the current index without reloading.
func (r *Registry) Snapshot() Snapshot {
	collections := r.sorted()
	snap := make(Snapshot, 0, len(collections))
	for _, c := range collections {
		cs := CollectionSnapshot{
			ID:       c.ID(),
			Kind:     c.Kind().Collection,
			Location: c.Location(),
			Records:  make([]RecordSnapshot, 0, c.Count()),
		}
		for _, rec := range c.Records() {
			cs.Records = append(cs.Records, RecordSnapshot{ID: rec.ID(), Location: rec.Location()})
		}
		snap = append(snap, cs)
	}
	return snap
}

// Records returns the total number of Records across all Collections.
func (s Snapshot) Records() int {
	n := 0
	for _, c := range s {
		n += len(c.Records)
	}
	return n
}

// String renders one line per Collection and per Record, suitable for
// line diffs.
func (s Snapshot) String() string {
	var b strings.Builder
	for _, c := range s {
		fmt.Fprintf(&b, "%s %s %s\n", c.Kind, c.ID, c.Location)
		for i, rec := range c.Records {
			fmt.Fprintf(&b, "  %d %s %s\n", i, rec.ID, rec.Location)
		}
	}
	return b.String()
}
