package fsstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, s *Store, rel, content string) {
	t.Helper()
	path := filepath.Join(s.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// === Construction ===

func TestNew_RequiresDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.yaml")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = New(file)
	require.Error(t, err)
}

// === Round trip ===

func TestSaveLoad(t *testing.T) {
	s := newStore(t)
	id, owner := identity.New(), identity.New()
	asset := &storage.Asset{Tag: "card", ID: id, Collection: owner, Payload: map[string]any{"name": "Fireball"}}

	require.NoError(t, s.Save("decks/fire/fireball.yaml", asset))
	require.FileExists(t, filepath.Join(s.Root(), "decks", "fire", "fireball.yaml"))

	got, err := s.Load("decks/fire/fireball.yaml")
	require.NoError(t, err)
	require.Equal(t, asset, got)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "decks", "fire"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestLoad_Errors(t *testing.T) {
	s := newStore(t)

	_, err := s.Load("nope.yaml")
	require.ErrorIs(t, err, storage.ErrNotFound)

	writeFile(t, s, "broken.yaml", "kind: [oops\n")
	_, err = s.Load("broken.yaml")
	require.ErrorIs(t, err, storage.ErrMalformedAsset)
}

// === Enumerate ===

func TestEnumerate_FiltersByKind(t *testing.T) {
	s := newStore(t)
	writeFile(t, s, "b/deck.yaml", "kind: deck\n")
	writeFile(t, s, "a/deck.yml", "kind: deck\n")
	writeFile(t, s, "a/card.yaml", "kind: card\n")
	writeFile(t, s, "notes.txt", "kind: deck\n")
	writeFile(t, s, ".catalog/deck.yaml", "kind: deck\n")
	writeFile(t, s, "garbage.yaml", "::: not yaml\n\t-")

	decks, err := s.Enumerate("deck")
	require.NoError(t, err)
	require.Equal(t, []storage.Location{"a/deck.yml", "b/deck.yaml"}, decks)

	cards, err := s.Enumerate("card")
	require.NoError(t, err)
	require.Equal(t, []storage.Location{"a/card.yaml"}, cards)
}

// === Mutations ===

func TestDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("x.yaml", &storage.Asset{Tag: "deck"}))

	require.NoError(t, s.Delete("x.yaml"))
	require.False(t, storage.Exists(s, "x.yaml"))
	require.ErrorIs(t, s.Delete("x.yaml"), storage.ErrNotFound)
}

func TestMove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("a.yaml", &storage.Asset{Tag: "deck"}))
	require.NoError(t, s.Save("b.yaml", &storage.Asset{Tag: "deck"}))

	require.NoError(t, s.Move("a.yaml", "sub/dir/a.yaml"))
	require.True(t, storage.Exists(s, "sub/dir/a.yaml"))
	require.False(t, storage.Exists(s, "a.yaml"))

	require.ErrorIs(t, s.Move("a.yaml", "c.yaml"), storage.ErrNotFound)
	require.ErrorIs(t, s.Move("b.yaml", "sub/dir/a.yaml"), storage.ErrExists)
}

func TestReadOnly(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("a.yaml", &storage.Asset{Tag: "deck"}))
	s.SetReadOnly(true)

	require.ErrorIs(t, s.Save("b.yaml", &storage.Asset{Tag: "deck"}), storage.ErrReadOnly)
	require.ErrorIs(t, s.Delete("a.yaml"), storage.ErrReadOnly)
	require.ErrorIs(t, s.Move("a.yaml", "c.yaml"), storage.ErrReadOnly)

	_, err := s.Load("a.yaml")
	require.NoError(t, err)
}

// === Paths ===

func TestPath_RejectsEscapes(t *testing.T) {
	s := newStore(t)
	tests := []struct {
		loc storage.Location
		ok  bool
	}{
		{"decks/a.yaml", true},
		{"a.yaml", true},
		{"", false},
		{"../outside.yaml", false},
		{"decks/../../x.yaml", false},
		{"/etc/passwd", false},
		{"./a.yaml", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.loc), func(t *testing.T) {
			_, err := s.Path(tt.loc)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrOutsideRoot)
			}
		})
	}
}

func TestLocate(t *testing.T) {
	s := newStore(t)

	loc, err := s.Locate(filepath.Join(s.Root(), "decks", "a.yaml"))
	require.NoError(t, err)
	require.Equal(t, storage.Location("decks/a.yaml"), loc)

	_, err = s.Locate(s.Root())
	require.ErrorIs(t, err, ErrOutsideRoot)

	_, err = s.Locate(filepath.Dir(s.Root()))
	require.ErrorIs(t, err, ErrOutsideRoot)
}

func TestIsNestedUnder(t *testing.T) {
	s := newStore(t)
	require.True(t, s.IsNestedUnder("decks/fire/a.yaml", "decks/deck.yaml"))
	require.False(t, s.IsNestedUnder("other/a.yaml", "decks/deck.yaml"))
}
