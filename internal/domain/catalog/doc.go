// Package catalog implements the domain layer of the asset catalog.
//
// This package holds only pure Go types with no knowledge of how assets are
// stored, enumerated or watched:
//   - Record: an item carrying its own Identifier and the Identifier of the
//     Collection that owns it.
//   - Collection: an ordered, deduplicated sequence of Records with its own
//     Identifier.
//   - Kinds: the explicit registration table mapping a Collection type tag to
//     the Record type tag it holds.
//
// # Ownership
//
// A Record names its owner by Identifier rather than by pointer, so the
// Record ↔ Collection relation carries no reference cycle. The ownership
// invariant is that every Record in a Collection's sequence names that
// Collection as its owner. Refresh confirms and filters ownership; it never
// assigns it.
//
// # Mutability
//
// Structural edits (Add, Insert, RemoveAt, Swap, identifier regeneration)
// are only allowed at edit time. A Collection marked read-only rejects them
// with ErrUnsupportedMutation.
package catalog
