package enforcer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/catalog/internal/assets"
	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

var kinds = catalog.MustKinds(catalog.Kind{Collection: "deck", Record: "card"})

type fixture struct {
	store *storage.MemoryStore
	db    *assets.Database
	enf   *Enforcer
	g1    identity.ID
	items []identity.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: storage.NewMemoryStore(), g1: identity.New()}
	f.store.Put("decks/g1.yaml", &storage.Asset{Tag: "deck", ID: f.g1})
	for i := 1; i <= 3; i++ {
		id := identity.New()
		f.items = append(f.items, id)
		f.store.Put(storage.Location(fmt.Sprintf("decks/i%d.yaml", i)), &storage.Asset{Tag: "card", ID: id, Collection: f.g1})
	}
	f.db = assets.New(f.store, kinds)
	f.enf = New(f.db)
	return f
}

func (f *fixture) storedID(t *testing.T, loc storage.Location) identity.ID {
	t.Helper()
	a, err := f.store.Load(loc)
	require.NoError(t, err)
	return a.ID
}

// === Scenarios ===

func TestEnforcer_DuplicateIsRegenerated(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	require.NoError(t, f.store.Duplicate("decks/i1.yaml", "decks/i1 copy.yaml"))
	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/i1 copy.yaml"}})

	require.Len(t, report.Repaired, 1)
	repair := report.Repaired[0]
	require.Equal(t, storage.Location("decks/i1 copy.yaml"), repair.Location)
	require.Equal(t, f.items[0], repair.Old)
	require.Equal(t, storage.Location("decks/i1.yaml"), repair.Owner)

	copyID := f.storedID(t, "decks/i1 copy.yaml")
	require.NotEqual(t, f.items[0], copyID)
	require.True(t, copyID.IsValid())
	require.Equal(t, f.items[0], f.storedID(t, "decks/i1.yaml"))

	owner, ok := f.enf.Owner(f.items[0])
	require.True(t, ok)
	require.Equal(t, storage.Location("decks/i1.yaml"), owner, "original owner mapping is unchanged")
	owner, ok = f.enf.Owner(copyID)
	require.True(t, ok)
	require.Equal(t, storage.Location("decks/i1 copy.yaml"), owner)
}

// === Imports ===

func TestEnforcer_AssignsMissingIdentifier(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	f.store.Put("decks/new.yaml", &storage.Asset{Tag: "card", Collection: f.g1})
	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/new.yaml"}})

	require.Equal(t, []storage.Location{"decks/new.yaml"}, report.Assigned)
	id := f.storedID(t, "decks/new.yaml")
	require.True(t, id.IsValid())
	require.True(t, report.Changed())
}

func TestEnforcer_ReimportOfSameLocationIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/i2.yaml", "decks/i2.yaml"}})
	require.False(t, report.Changed())
	require.Equal(t, f.items[1], f.storedID(t, "decks/i2.yaml"))
}

func TestEnforcer_ExternallyChangedIdentifierReleasesOldMapping(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	replacement := identity.New()
	f.store.Put("decks/i2.yaml", &storage.Asset{Tag: "card", ID: replacement, Collection: f.g1})
	f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/i2.yaml"}})

	_, ok := f.enf.Owner(f.items[1])
	require.False(t, ok)
	owner, ok := f.enf.Owner(replacement)
	require.True(t, ok)
	require.Equal(t, storage.Location("decks/i2.yaml"), owner)
}

func TestEnforcer_SameBatchCollisionKeepsSmallestLocation(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	shared := identity.New()
	f.store.Put("decks/b.yaml", &storage.Asset{Tag: "card", ID: shared, Collection: f.g1})
	f.store.Put("decks/a.yaml", &storage.Asset{Tag: "card", ID: shared, Collection: f.g1})

	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/b.yaml", "decks/a.yaml"}})
	require.Len(t, report.Repaired, 1)
	require.Equal(t, storage.Location("decks/b.yaml"), report.Repaired[0].Location)
	require.Equal(t, shared, f.storedID(t, "decks/a.yaml"))
}

func TestEnforcer_StaleOwnerIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	// The original vanished without a delete notification.
	require.NoError(t, f.store.Duplicate("decks/i3.yaml", "decks/moved.yaml"))
	f.store.Remove("decks/i3.yaml")

	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/moved.yaml"}})
	require.Empty(t, report.Repaired)
	require.Equal(t, f.items[2], f.storedID(t, "decks/moved.yaml"))
	owner, _ := f.enf.Owner(f.items[2])
	require.Equal(t, storage.Location("decks/moved.yaml"), owner)
}

func TestEnforcer_UnbuiltIndexRebuildsFirst(t *testing.T) {
	f := newFixture(t)
	require.False(t, f.enf.Built())

	require.NoError(t, f.store.Duplicate("decks/i1.yaml", "decks/zz.yaml"))
	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/zz.yaml"}})

	require.True(t, report.Rebuilt)
	require.True(t, f.enf.Built())
	require.Len(t, report.Repaired, 1)
	require.Equal(t, storage.Location("decks/zz.yaml"), report.Repaired[0].Location)
	require.Equal(t, 5, f.enf.Len())
}

// === Moves and deletes ===

func TestEnforcer_MoveKeepsIdentifier(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	r, err := f.db.LoadRecord("decks/i1.yaml")
	require.NoError(t, err)

	require.NoError(t, f.store.Move("decks/i1.yaml", "decks/sub/i1.yaml"))
	report := f.enf.Apply(storage.ChangeBatch{
		Moved:    []storage.Move{{From: "decks/i1.yaml", To: "decks/sub/i1.yaml"}},
		Imported: []storage.Location{"decks/sub/i1.yaml"},
	})

	require.False(t, report.Changed())
	require.Len(t, report.Moved, 1)
	require.Equal(t, f.items[0], r.ID())
	require.Equal(t, storage.Location("decks/sub/i1.yaml"), r.Location())
	owner, _ := f.enf.Owner(f.items[0])
	require.Equal(t, storage.Location("decks/sub/i1.yaml"), owner)
}

func TestEnforcer_DeleteAfterMoveKeepsMapping(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	require.NoError(t, f.store.Move("decks/i1.yaml", "decks/x.yaml"))
	f.enf.Apply(storage.ChangeBatch{Moved: []storage.Move{{From: "decks/i1.yaml", To: "decks/x.yaml"}}})

	// A late delete notification for the old path must not drop the mapping.
	f.enf.Apply(storage.ChangeBatch{Deleted: []storage.Location{"decks/i1.yaml"}})
	owner, ok := f.enf.Owner(f.items[0])
	require.True(t, ok)
	require.Equal(t, storage.Location("decks/x.yaml"), owner)
}

func TestEnforcer_DeleteDropsMappingAndDestroys(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()
	r, err := f.db.LoadRecord("decks/i2.yaml")
	require.NoError(t, err)

	f.store.Remove("decks/i2.yaml")
	report := f.enf.Apply(storage.ChangeBatch{Deleted: []storage.Location{"decks/i2.yaml"}})

	require.Equal(t, []storage.Location{"decks/i2.yaml"}, report.Removed)
	require.Len(t, report.Destroyed, 1)
	require.True(t, r.IsDestroyed())
	_, ok := f.enf.Owner(f.items[1])
	require.False(t, ok)
}

func TestEnforcer_MoveOntoTakenIdentifierRegenerates(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	f.store.Put("decks/tmp.yaml", &storage.Asset{Tag: "card", ID: f.items[0], Collection: f.g1})
	require.NoError(t, f.store.Move("decks/tmp.yaml", "decks/dest.yaml"))
	report := f.enf.Apply(storage.ChangeBatch{Moved: []storage.Move{{From: "decks/tmp.yaml", To: "decks/dest.yaml"}}})

	require.Len(t, report.Repaired, 1)
	require.Equal(t, storage.Location("decks/dest.yaml"), report.Repaired[0].Location)
	require.Equal(t, f.items[0], f.storedID(t, "decks/i1.yaml"))
}

// === Rebuild ===

func TestEnforcer_RebuildFirstSeenWins(t *testing.T) {
	f := newFixture(t)
	f.store.Put("aaa/early.yaml", &storage.Asset{Tag: "card", ID: f.items[2]})
	f.store.Put("zzz/blank.yaml", &storage.Asset{Tag: "deck"})

	report := f.enf.Rebuild()
	require.True(t, report.Rebuilt)
	require.Equal(t, []storage.Location{"zzz/blank.yaml"}, report.Assigned)
	require.Len(t, report.Repaired, 1)
	require.Equal(t, storage.Location("decks/i3.yaml"), report.Repaired[0].Location)
	require.Equal(t, storage.Location("aaa/early.yaml"), report.Repaired[0].Owner)

	again := f.enf.Rebuild()
	require.False(t, again.Changed(), "rebuild reaches a fixed point")
}

func TestEnforcer_ReadOnlyStoreStillIndexes(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()
	f.store.Put("decks/new.yaml", &storage.Asset{Tag: "card", Collection: f.g1})
	f.store.SetReadOnly(true)

	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/new.yaml"}})
	require.Len(t, report.Assigned, 1)
	require.False(t, f.storedID(t, "decks/new.yaml").IsValid(), "write-back failed and was logged")
}

func TestEnforcer_UnreadableImportIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.enf.Rebuild()

	report := f.enf.Apply(storage.ChangeBatch{Imported: []storage.Location{"decks/missing.yaml"}})
	require.False(t, report.Changed())
	require.Empty(t, report.Touched)
}

// === Properties ===

func TestEnforcer_IdentifiersStayUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := storage.NewMemoryStore()
		db := assets.New(store, kinds)
		enf := New(db)
		var locs []storage.Location
		next := 0

		newLoc := func() storage.Location {
			next++
			return storage.Location(fmt.Sprintf("d/%03d.yaml", next))
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for s := 0; s < steps; s++ {
			var batch storage.ChangeBatch
			switch op := rapid.IntRange(0, 4).Draw(t, "op"); {
			case op == 0 || len(locs) == 0:
				loc := newLoc()
				asset := &storage.Asset{Tag: "card"}
				if rapid.Bool().Draw(t, "withID") {
					asset.ID = identity.New()
				}
				store.Put(loc, asset)
				locs = append(locs, loc)
				batch.Imported = []storage.Location{loc}
			case op == 1 || op == 2:
				from := locs[rapid.IntRange(0, len(locs)-1).Draw(t, "dup")]
				to := newLoc()
				require.NoError(t, store.Duplicate(from, to))
				locs = append(locs, to)
				batch.Imported = []storage.Location{to}
			case op == 3:
				i := rapid.IntRange(0, len(locs)-1).Draw(t, "move")
				to := newLoc()
				require.NoError(t, store.Move(locs[i], to))
				batch.Moved = []storage.Move{{From: locs[i], To: to}}
				locs[i] = to
			default:
				i := rapid.IntRange(0, len(locs)-1).Draw(t, "delete")
				store.Remove(locs[i])
				batch.Deleted = []storage.Location{locs[i]}
				locs = append(locs[:i], locs[i+1:]...)
			}
			enf.Apply(batch)
		}

		seen := make(map[identity.ID]storage.Location)
		for _, loc := range locs {
			a, err := store.Load(loc)
			require.NoError(t, err)
			require.True(t, a.ID.IsValid(), "validity at %s", loc)
			if other, dup := seen[a.ID]; dup {
				t.Fatalf("identifier %s shared by %s and %s", a.ID, other, loc)
			}
			seen[a.ID] = loc
		}
	})
}
