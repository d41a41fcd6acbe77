package reference

import (
	"slices"

	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/log"
)

// Selection is an ordered set of Record Identifiers within one Collection.
// Membership is by Identifier, so it survives reordering of the Collection.
type Selection struct {
	Collection identity.ID   `yaml:"collection" json:"collection"`
	Selected   []identity.ID `yaml:"selected,omitempty" json:"selected,omitempty"`
}

// NewSelection creates an empty Selection scoped to collection.
func NewSelection(collection identity.ID) *Selection {
	return &Selection{Collection: collection}
}

// Select adds id. It reports whether the set changed.
func (s *Selection) Select(id identity.ID) bool {
	if !id.IsValid() || s.IsSelected(id) {
		return false
	}
	s.Selected = append(s.Selected, id)
	return true
}

// Deselect removes id. It reports whether the set changed.
func (s *Selection) Deselect(id identity.ID) bool {
	i := slices.Index(s.Selected, id)
	if i < 0 {
		return false
	}
	s.Selected = slices.Delete(s.Selected, i, i+1)
	return true
}

// Toggle flips membership of id and returns the new state.
func (s *Selection) Toggle(id identity.ID) bool {
	if s.Deselect(id) {
		return false
	}
	return s.Select(id)
}

// IsSelected reports whether id is in the set.
func (s *Selection) IsSelected(id identity.ID) bool {
	return slices.Contains(s.Selected, id)
}

// Len returns the number of selected Identifiers.
func (s *Selection) Len() int {
	return len(s.Selected)
}

// IDs returns a copy of the selected Identifiers in selection order.
func (s *Selection) IDs() []identity.ID {
	return slices.Clone(s.Selected)
}

// Clear empties the set.
func (s *Selection) Clear() {
	s.Selected = nil
}

// ResolvedItems resolves every selected Identifier in selection order.
// Identifiers missing from the Collection are dropped from the set. When the
// Collection itself is not known the result is empty and the set is kept.
func (s *Selection) ResolvedItems(lookup Lookup) []*catalog.Record {
	records, _ := s.resolve(lookup)
	return records
}

// Prune drops Identifiers that no longer resolve and returns them.
func (s *Selection) Prune(lookup Lookup) []identity.ID {
	_, dropped := s.resolve(lookup)
	return dropped
}

func (s *Selection) resolve(lookup Lookup) ([]*catalog.Record, []identity.ID) {
	c, ok := lookup.Collection(s.Collection)
	if !ok {
		log.Debug(log.CatResolve, "Selection collection not known", "collection", s.Collection, "selected", len(s.Selected))
		return nil, nil
	}

	records := make([]*catalog.Record, 0, len(s.Selected))
	var dropped []identity.ID
	kept := s.Selected[:0]
	for _, id := range s.Selected {
		rec, found := c.Find(id)
		if !found {
			dropped = append(dropped, id)
			continue
		}
		kept = append(kept, id)
		records = append(records, rec)
	}
	s.Selected = kept
	if len(dropped) > 0 {
		log.Debug(log.CatResolve, "Pruned selection", "collection", s.Collection, "dropped", len(dropped))
	}
	return records, dropped
}
