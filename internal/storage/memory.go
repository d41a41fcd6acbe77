package storage

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Put, Duplicate and Remove simulate
// external edits to the medium; they do not notify anyone, so callers feed
// the matching ChangeBatch to the catalog themselves.
type MemoryStore struct {
	mu       sync.RWMutex
	assets   map[Location]*Asset
	readOnly bool
	saves    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assets: make(map[Location]*Asset),
	}
}

var _ Store = (*MemoryStore)(nil)

// SetReadOnly makes every mutating call fail with ErrReadOnly.
func (s *MemoryStore) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

// Enumerate returns all locations holding assets of tag, sorted.
func (s *MemoryStore) Enumerate(tag TypeTag) ([]Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var locs []Location
	for loc, a := range s.assets {
		if a.Tag == tag {
			locs = append(locs, loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs, nil
}

// Load returns a copy of the asset at loc.
func (s *MemoryStore) Load(loc Location) (*Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assets[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	return a.Clone(), nil
}

// Save stores a copy of asset at loc.
func (s *MemoryStore) Save(loc Location, asset *Asset) error {
	if asset == nil {
		return fmt.Errorf("asset cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	s.assets[loc] = asset.Clone()
	s.saves++
	return nil
}

// Delete removes the asset at loc.
func (s *MemoryStore) Delete(loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	if _, ok := s.assets[loc]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, loc)
	}
	delete(s.assets, loc)
	return nil
}

// Move relocates an asset.
func (s *MemoryStore) Move(from, to Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return ErrReadOnly
	}
	a, ok := s.assets[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if _, taken := s.assets[to]; taken {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}
	delete(s.assets, from)
	s.assets[to] = a
	return nil
}

// IsNestedUnder applies the shared directory locality rule.
func (s *MemoryStore) IsNestedUnder(loc, ancestor Location) bool {
	return NestedUnder(loc, ancestor)
}

// Put writes an asset as an external editor would, bypassing read-only mode.
func (s *MemoryStore) Put(loc Location, asset *Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[loc] = asset.Clone()
}

// Duplicate copies the asset at from to to verbatim, Identifier included,
// the way a file copy outside the program would.
func (s *MemoryStore) Duplicate(from, to Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assets[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if _, taken := s.assets[to]; taken {
		return fmt.Errorf("%w: %s", ErrExists, to)
	}
	s.assets[to] = a.Clone()
	return nil
}

// Remove deletes an asset as an external editor would.
func (s *MemoryStore) Remove(loc Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assets, loc)
}

// Len returns the number of stored assets.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

// Saves returns how many Save calls succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
