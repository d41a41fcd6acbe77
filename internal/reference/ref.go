// Package reference implements soft references between Records.
//
// A Ref names a Record by (Collection Identifier, Record Identifier) and
// resolves lazily through a Lookup. It caches the resolved Record through a
// weak pointer, so holding a Ref never keeps a Record alive. A Selection is
// an ordered set of Record Identifiers scoped to one Collection.
package reference

import (
	"errors"
	"fmt"
	"strings"
	"weak"

	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
)

// ErrInvalidReference is returned when a reference string is malformed.
var ErrInvalidReference = errors.New("invalid reference")

// Lookup finds registered Collections. Implementations must not reload.
type Lookup interface {
	Collection(id identity.ID) (*catalog.Collection, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(id identity.ID) (*catalog.Collection, bool)

// Collection calls f.
func (f LookupFunc) Collection(id identity.ID) (*catalog.Collection, bool) {
	return f(id)
}

// Ref is an indirect reference to a Record.
type Ref struct {
	collection identity.ID
	record     identity.ID
	cached     weak.Pointer[catalog.Record]
}

// New creates a reference to record inside collection.
func New(collection, record identity.ID) *Ref {
	return &Ref{collection: collection, record: record}
}

// To creates a reference to r, naming its owning Collection.
func To(r *catalog.Record) *Ref {
	ref := New(r.Collection(), r.ID())
	ref.cached = weak.Make(r)
	return ref
}

// Parse reads the "collection:record" text form.
func Parse(s string) (*Ref, error) {
	ref := &Ref{}
	if err := ref.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return ref, nil
}

// CollectionID returns the referenced Collection's Identifier.
func (r *Ref) CollectionID() identity.ID {
	return r.collection
}

// RecordID returns the referenced Record's Identifier.
func (r *Ref) RecordID() identity.ID {
	return r.record
}

// IsZero reports whether the reference names nothing.
func (r *Ref) IsZero() bool {
	return r == nil || (r.collection.IsZero() && r.record.IsZero())
}

// String returns the "collection:record" form.
func (r *Ref) String() string {
	return r.collection.String() + ":" + r.record.String()
}

// MarshalText implements encoding.TextMarshaler.
func (r *Ref) MarshalText() ([]byte, error) {
	if r.IsZero() {
		return []byte{}, nil
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and clears the cache.
func (r *Ref) UnmarshalText(text []byte) error {
	*r = Ref{}
	if len(text) == 0 {
		return nil
	}
	coll, rec, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("%w: %q: want collection:record", ErrInvalidReference, text)
	}
	collID, err := identity.Parse(coll)
	if err != nil {
		return fmt.Errorf("%w: collection: %w", ErrInvalidReference, err)
	}
	recID, err := identity.Parse(rec)
	if err != nil {
		return fmt.Errorf("%w: record: %w", ErrInvalidReference, err)
	}
	r.collection, r.record = collID, recID
	return nil
}

// Cached returns the cached Record if it is still valid.
func (r *Ref) Cached() (*catalog.Record, bool) {
	rec := r.cached.Value()
	if !r.matches(rec) {
		return nil, false
	}
	return rec, true
}

func (r *Ref) matches(rec *catalog.Record) bool {
	return rec != nil && !rec.IsDestroyed() &&
		rec.ID() == r.record && rec.Collection() == r.collection
}

// Resolve returns the referenced Record. A miss is a normal outcome: the
// Collection or Record may have been deleted.
func (r *Ref) Resolve(lookup Lookup) (*catalog.Record, bool) {
	if rec, ok := r.Cached(); ok {
		return rec, true
	}
	r.cached = weak.Pointer[catalog.Record]{}

	if !r.collection.IsValid() || !r.record.IsValid() {
		return nil, false
	}
	c, ok := lookup.Collection(r.collection)
	if !ok {
		return nil, false
	}
	rec, ok := c.Find(r.record)
	if !ok || !r.matches(rec) {
		return nil, false
	}
	r.cached = weak.Make(rec)
	return rec, true
}

// Invalidate drops the cached Record.
func (r *Ref) Invalidate() {
	r.cached = weak.Pointer[catalog.Record]{}
}
