package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

var deckKind = Kind{Collection: "deck", Record: "card"}

// fakeSource serves a fixed candidate list.
type fakeSource struct {
	records []*Record
	err     error
}

func (f *fakeSource) RecordsOf(tag storage.TypeTag) ([]*Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*Record
	for _, r := range f.records {
		if r.Tag() == tag {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) IsNestedUnder(loc, ancestor storage.Location) bool {
	return storage.NestedUnder(loc, ancestor)
}

func newDeck(loc storage.Location) *Collection {
	return NewCollection(loc, deckKind, &storage.Asset{Tag: deckKind.Collection, ID: identity.New()})
}

func newCard(loc storage.Location, owner identity.ID) *Record {
	return NewRecord(loc, &storage.Asset{Tag: deckKind.Record, ID: identity.New(), Collection: owner})
}

// === Sequence access ===

func TestCollection_AddInsertIndexOf(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	b := newCard("decks/b.yaml", c.ID())
	x := newCard("decks/x.yaml", identity.Nil)

	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))
	require.NoError(t, c.Insert(1, x))

	require.Equal(t, 3, c.Count())
	require.Equal(t, 0, c.IndexOf(a))
	require.Equal(t, 1, c.IndexOf(x))
	require.Equal(t, 2, c.IndexOf(b))
	require.Equal(t, c.ID(), x.Collection(), "unowned record is attached on insert")

	got, err := c.At(1)
	require.NoError(t, err)
	require.Same(t, x, got)

	_, err = c.At(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = c.At(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCollection_AddRejectsDuplicatesAndForeignRecords(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	foreign := newCard("decks/f.yaml", identity.New())

	require.NoError(t, c.Add(a))
	require.ErrorIs(t, c.Add(a), ErrDuplicateRecord)
	require.ErrorIs(t, c.Add(foreign), ErrOwnershipViolation)
	require.ErrorIs(t, c.Add(nil), ErrNilRecord)

	dead := newCard("decks/d.yaml", c.ID())
	dead.Destroy()
	require.ErrorIs(t, c.Add(dead), ErrDestroyed)

	require.ErrorIs(t, c.Insert(5, newCard("decks/z.yaml", c.ID())), ErrIndexOutOfRange)
	require.Equal(t, 1, c.Count())
}

func TestCollection_RemoveAtAndSwap(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	cards := make([]*Record, 3)
	for i := range cards {
		cards[i] = newCard(storage.Location(fmt.Sprintf("decks/%d.yaml", i)), c.ID())
		require.NoError(t, c.Add(cards[i]))
	}

	require.NoError(t, c.Swap(0, 2))
	require.Equal(t, []*Record{cards[2], cards[1], cards[0]}, c.Records())
	require.ErrorIs(t, c.Swap(0, 3), ErrIndexOutOfRange)

	removed, err := c.RemoveAt(1)
	require.NoError(t, err)
	require.Same(t, cards[1], removed)
	require.Equal(t, []*Record{cards[2], cards[0]}, c.Records())
	require.False(t, c.Contains(cards[1]))

	_, err = c.RemoveAt(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestCollection_RecordsReturnsCopy(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	require.NoError(t, c.Add(newCard("decks/a.yaml", c.ID())))

	records := c.Records()
	records[0] = nil
	got, err := c.At(0)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestCollection_ReadOnlyRejectsStructuralMutation(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	b := newCard("decks/b.yaml", c.ID())
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	c.SetReadOnly(true)
	require.True(t, c.IsReadOnly())

	require.ErrorIs(t, c.Add(newCard("decks/c.yaml", c.ID())), ErrUnsupportedMutation)
	require.ErrorIs(t, c.Insert(0, newCard("decks/d.yaml", c.ID())), ErrUnsupportedMutation)
	_, err := c.RemoveAt(0)
	require.ErrorIs(t, err, ErrUnsupportedMutation)
	require.ErrorIs(t, c.Swap(0, 1), ErrUnsupportedMutation)
	require.Equal(t, []*Record{a, b}, c.Records())

	// Bookkeeping still works.
	a.Destroy()
	require.Equal(t, []*Record{a}, c.Prune())
	require.Equal(t, 1, c.Count())
}

// === Find ===

func TestCollection_Find(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	require.NoError(t, c.Add(a))

	got, ok := c.Find(a.ID())
	require.True(t, ok)
	require.Same(t, a, got)

	_, ok = c.Find(identity.New())
	require.False(t, ok)
	_, ok = c.Find(identity.Nil)
	require.False(t, ok)
}

func TestCollection_FindAfterRegeneration(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	require.NoError(t, c.Add(a))

	old := a.ID()
	_, ok := c.Find(old)
	require.True(t, ok)

	next := a.RegenerateIdentifier()
	_, ok = c.Find(old)
	require.False(t, ok, "stale index entry must not resolve")

	got, ok := c.Find(next)
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestCollection_FindSkipsDestroyed(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	require.NoError(t, c.Add(a))
	a.Destroy()

	_, ok := c.Find(a.ID())
	require.False(t, ok)
}

// === Refresh ===

func TestCollection_Refresh_AdoptsOwnedNestedRecords(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	i1 := newCard("decks/i1.yaml", c.ID())
	i2 := newCard("decks/i2.yaml", c.ID())
	i3 := newCard("decks/sub/i3.yaml", c.ID())
	src := &fakeSource{records: []*Record{i1, i2, i3}}

	result, err := c.Refresh(src)
	require.NoError(t, err)
	require.Equal(t, []*Record{i1, i2, i3}, c.Records())
	require.Len(t, result.Added, 3)
	require.True(t, result.Changed())

	// Idempotent given an unchanged source.
	result, err = c.Refresh(src)
	require.NoError(t, err)
	require.False(t, result.Changed())
	require.Equal(t, []*Record{i1, i2, i3}, c.Records())
}

func TestCollection_Refresh_BackReferenceIsAuthoritative(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	other := identity.New()
	mine := newCard("decks/mine.yaml", c.ID())
	theirs := newCard("decks/theirs.yaml", other)
	unowned := newCard("decks/unowned.yaml", identity.Nil)
	src := &fakeSource{records: []*Record{mine, theirs, unowned}}

	_, err := c.Refresh(src)
	require.NoError(t, err)
	require.Equal(t, []*Record{mine}, c.Records())
	require.Equal(t, identity.Nil, unowned.Collection(), "refresh never assigns ownership")
}

func TestCollection_Refresh_LocalityFilter(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	inside := newCard("decks/in.yaml", c.ID())
	outside := newCard("elsewhere/out.yaml", c.ID())
	src := &fakeSource{records: []*Record{inside, outside}}

	result, err := c.Refresh(src)
	require.NoError(t, err)
	require.Equal(t, []*Record{inside}, c.Records())
	require.Equal(t, []*Record{outside}, result.Misplaced)
}

func TestCollection_Refresh_PreservesExistingOrder(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	b := newCard("decks/b.yaml", c.ID())
	n := newCard("decks/n.yaml", c.ID())
	require.NoError(t, c.Add(b))
	require.NoError(t, c.Add(a))

	_, err := c.Refresh(&fakeSource{records: []*Record{a, b, n}})
	require.NoError(t, err)
	require.Equal(t, []*Record{b, a, n}, c.Records(), "user order is kept; new records append")
}

func TestCollection_Refresh_DropsDestroyedAndForeign(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	b := newCard("decks/b.yaml", c.ID())
	require.NoError(t, c.Add(a))
	require.NoError(t, c.Add(b))

	a.Destroy()
	b.Reimport(&storage.Asset{Tag: "card", ID: b.ID(), Collection: identity.New()})

	result, err := c.Refresh(&fakeSource{records: []*Record{a, b}})
	require.NoError(t, err)
	require.Equal(t, 0, c.Count())
	require.ElementsMatch(t, []*Record{a, b}, result.Removed)
}

func TestCollection_Refresh_SourceError(t *testing.T) {
	c := newDeck("decks/starter.yaml")
	a := newCard("decks/a.yaml", c.ID())
	require.NoError(t, c.Add(a))

	boom := errors.New("disk on fire")
	_, err := c.Refresh(&fakeSource{err: boom})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, c.Count(), "failed refresh leaves the sequence untouched")
}

// === Identifier ===

func TestCollection_AssignAndRegenerate(t *testing.T) {
	c := NewCollection("decks/x.yaml", deckKind, &storage.Asset{Tag: "deck"})
	require.False(t, c.ID().IsValid())

	id := identity.New()
	require.NoError(t, c.AssignIdentifier(id))
	require.ErrorIs(t, c.AssignIdentifier(identity.New()), ErrUnsupportedMutation)

	next := c.RegenerateIdentifier()
	require.NotEqual(t, id, next)
	require.Equal(t, storage.TypeTag("deck"), c.Asset().Tag)
	require.Equal(t, next, c.Asset().ID)
}

// === Property-Based Tests ===

func TestCollection_PropertyBased_OwnershipAndNoDuplicates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := newDeck("decks/starter.yaml")
		pool := make([]*Record, 8)
		for i := range pool {
			owner := c.ID()
			if rapid.Bool().Draw(t, "foreign") {
				owner = identity.New()
			}
			pool[i] = newCard(storage.Location(fmt.Sprintf("decks/%d.yaml", i)), owner)
		}

		numOps := rapid.IntRange(1, 60).Draw(t, "numOps")
		for i := 0; i < numOps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				_ = c.Add(pool[rapid.IntRange(0, len(pool)-1).Draw(t, "add")])
			case 1:
				if c.Count() > 0 {
					_, _ = c.RemoveAt(rapid.IntRange(0, c.Count()-1).Draw(t, "remove"))
				}
			case 2:
				if c.Count() > 1 {
					_ = c.Swap(rapid.IntRange(0, c.Count()-1).Draw(t, "i"), rapid.IntRange(0, c.Count()-1).Draw(t, "j"))
				}
			case 3:
				pool[rapid.IntRange(0, len(pool)-1).Draw(t, "destroy")].Destroy()
			case 4:
				_, _ = c.Refresh(&fakeSource{records: pool})
			}
		}

		_, _ = c.Refresh(&fakeSource{records: pool})

		seen := make(map[*Record]bool)
		for _, r := range c.Records() {
			if seen[r] {
				t.Fatalf("duplicate reference in sequence")
			}
			seen[r] = true
			if r.Collection() != c.ID() {
				t.Fatalf("ownership invariant violated for %s", r.Location())
			}
			if r.IsDestroyed() {
				t.Fatalf("destroyed record survived refresh")
			}
		}
	})
}
