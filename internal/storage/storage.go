// Package storage defines the contract the catalog consumes from the
// underlying asset medium, plus an in-memory implementation used by tests
// and tooling.
//
// The medium is file-like and externally mutable: assets may be created,
// duplicated, moved or deleted outside the program's control. Changes are
// reported back to the catalog as ChangeBatch values.
package storage

import (
	"errors"
	"path"
	"slices"
	"strings"

	"github.com/zjrosen/catalog/internal/identity"
)

// Storage errors
var (
	ErrNotFound = errors.New("asset not found")
	ErrExists   = errors.New("asset already exists")
	ErrReadOnly = errors.New("store is read-only")
)

// Location addresses an asset inside a store. Locations are slash-separated
// paths relative to the store root, e.g. "decks/starter.yaml".
type Location string

// String returns the location as a plain string.
func (l Location) String() string {
	return string(l)
}

// Dir returns the directory part of the location ("." at the root).
func (l Location) Dir() Location {
	return Location(path.Dir(string(l)))
}

// Base returns the last element of the location without its extension.
func (l Location) Base() string {
	base := path.Base(string(l))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Clean normalizes a location to slash form without leading "./" or "/".
func Clean(loc string) Location {
	cleaned := path.Clean("/" + strings.ReplaceAll(loc, "\\", "/"))
	return Location(strings.TrimPrefix(cleaned, "/"))
}

// TypeTag is the logical type of an asset (a Collection kind or a Record kind).
type TypeTag string

// Asset is the document stored at a location. Records carry their owning
// Collection's Identifier; Collections leave it unset.
type Asset struct {
	Tag        TypeTag        `yaml:"kind" json:"kind"`
	ID         identity.ID    `yaml:"id" json:"id"`
	Collection identity.ID    `yaml:"collection,omitempty" json:"collection,omitempty"`
	Payload    map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Clone returns a copy of the asset with a shallow copy of its payload.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	if a.Payload != nil {
		c.Payload = make(map[string]any, len(a.Payload))
		for k, v := range a.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// Store is the storage provider contract.
//
// All calls are synchronous and treated as fast local operations.
type Store interface {
	// Enumerate returns the locations of all assets with the given tag,
	// sorted lexicographically.
	Enumerate(tag TypeTag) ([]Location, error)

	// Load materializes the asset at loc. Returns ErrNotFound when absent.
	Load(loc Location) (*Asset, error)

	// Save writes the asset at loc, creating it if needed. This is the
	// mark-dirty operation: the write is persisted before Save returns.
	Save(loc Location, asset *Asset) error

	// Delete removes the asset at loc. Returns ErrNotFound when absent.
	Delete(loc Location) error

	// Move relocates the asset at from to to. Returns ErrNotFound when the
	// source is absent and ErrExists when the destination is taken.
	Move(from, to Location) error

	// IsNestedUnder reports whether loc is filed under ancestor.
	IsNestedUnder(loc, ancestor Location) bool
}

// Exists reports whether an asset is present at loc.
func Exists(s Store, loc Location) bool {
	_, err := s.Load(loc)
	return err == nil
}

// NestedUnder is the locality rule shared by the bundled stores: loc is
// nested under ancestor when it lives in the directory containing ancestor
// or in any directory below it. An asset is never nested under itself.
func NestedUnder(loc, ancestor Location) bool {
	if loc == "" || ancestor == "" || loc == ancestor {
		return false
	}
	dir := ancestor.Dir()
	if dir == "." {
		return true
	}
	return strings.HasPrefix(string(loc), string(dir)+"/")
}

// Move pairs a moved-from and a moved-to location.
type Move struct {
	From Location
	To   Location
}

// ChangeBatch is one notification of externally triggered storage changes.
type ChangeBatch struct {
	Imported []Location
	Deleted  []Location
	Moved    []Move
}

// IsEmpty reports whether the batch carries no changes.
func (b ChangeBatch) IsEmpty() bool {
	return len(b.Imported) == 0 && len(b.Deleted) == 0 && len(b.Moved) == 0
}

// Merge appends other to b, dropping exact duplicates.
func (b ChangeBatch) Merge(other ChangeBatch) ChangeBatch {
	out := ChangeBatch{
		Imported: appendUnique(slices.Clone(b.Imported), other.Imported...),
		Deleted:  appendUnique(slices.Clone(b.Deleted), other.Deleted...),
		Moved:    slices.Clone(b.Moved),
	}
	for _, m := range other.Moved {
		if !slices.Contains(out.Moved, m) {
			out.Moved = append(out.Moved, m)
		}
	}
	return out
}

func appendUnique(dst []Location, locs ...Location) []Location {
	for _, l := range locs {
		if !slices.Contains(dst, l) {
			dst = append(dst, l)
		}
	}
	return dst
}
