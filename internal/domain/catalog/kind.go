package catalog

import (
	"fmt"
	"sort"

	"github.com/zjrosen/catalog/internal/storage"
)

// Kind associates a Collection type tag with the Record type tag its
// Collections hold. The association is declared once, not discovered.
type Kind struct {
	Collection storage.TypeTag
	Record     storage.TypeTag
}

// Kinds is the registration table of known Kinds.
type Kinds struct {
	byCollection map[storage.TypeTag]Kind
	byRecord     map[storage.TypeTag]Kind
}

// NewKinds creates a table pre-populated with kinds.
func NewKinds(kinds ...Kind) (*Kinds, error) {
	k := &Kinds{
		byCollection: make(map[storage.TypeTag]Kind),
		byRecord:     make(map[storage.TypeTag]Kind),
	}
	for _, kind := range kinds {
		if err := k.Register(kind); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// MustKinds is NewKinds that panics on error. Use only for tests and fixed tables.
func MustKinds(kinds ...Kind) *Kinds {
	k, err := NewKinds(kinds...)
	if err != nil {
		panic(err)
	}
	return k
}

// Register adds a Kind. A tag may appear in only one Kind, in one role.
func (k *Kinds) Register(kind Kind) error {
	if kind.Collection == "" || kind.Record == "" {
		return fmt.Errorf("kind requires both collection and record tags")
	}
	if kind.Collection == kind.Record {
		return fmt.Errorf("%w: %q used for both collection and record", ErrDuplicateKind, kind.Collection)
	}
	for _, tag := range []storage.TypeTag{kind.Collection, kind.Record} {
		if _, ok := k.byCollection[tag]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateKind, tag)
		}
		if _, ok := k.byRecord[tag]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateKind, tag)
		}
	}
	k.byCollection[kind.Collection] = kind
	k.byRecord[kind.Record] = kind
	return nil
}

// ForCollection returns the Kind whose Collection tag is tag.
func (k *Kinds) ForCollection(tag storage.TypeTag) (Kind, bool) {
	kind, ok := k.byCollection[tag]
	return kind, ok
}

// ForRecord returns the Kind whose Record tag is tag.
func (k *Kinds) ForRecord(tag storage.TypeTag) (Kind, bool) {
	kind, ok := k.byRecord[tag]
	return kind, ok
}

// IsCollectionTag reports whether tag names a Collection type.
func (k *Kinds) IsCollectionTag(tag storage.TypeTag) bool {
	_, ok := k.byCollection[tag]
	return ok
}

// IsRecordTag reports whether tag names a Record type.
func (k *Kinds) IsRecordTag(tag storage.TypeTag) bool {
	_, ok := k.byRecord[tag]
	return ok
}

// List returns all Kinds sorted by Collection tag.
func (k *Kinds) List() []Kind {
	kinds := make([]Kind, 0, len(k.byCollection))
	for _, kind := range k.byCollection {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Collection < kinds[j].Collection })
	return kinds
}

// Tags returns every registered tag, Collection tags first, each group sorted.
func (k *Kinds) Tags() []storage.TypeTag {
	kinds := k.List()
	tags := make([]storage.TypeTag, 0, 2*len(kinds))
	for _, kind := range kinds {
		tags = append(tags, kind.Collection)
	}
	records := make([]storage.TypeTag, 0, len(kinds))
	for _, kind := range kinds {
		records = append(records, kind.Record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i] < records[j] })
	return append(tags, records...)
}
