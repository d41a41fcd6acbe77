package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog/internal/storage"
)

func TestKinds_RegisterAndLookup(t *testing.T) {
	kinds, err := NewKinds(
		Kind{Collection: "deck", Record: "card"},
		Kind{Collection: "bestiary", Record: "monster"},
	)
	require.NoError(t, err)

	kind, ok := kinds.ForCollection("deck")
	require.True(t, ok)
	require.Equal(t, storage.TypeTag("card"), kind.Record)

	kind, ok = kinds.ForRecord("monster")
	require.True(t, ok)
	require.Equal(t, storage.TypeTag("bestiary"), kind.Collection)

	require.True(t, kinds.IsCollectionTag("deck"))
	require.False(t, kinds.IsCollectionTag("card"))
	require.True(t, kinds.IsRecordTag("card"))

	_, ok = kinds.ForCollection("unknown")
	require.False(t, ok)
}

func TestKinds_RejectsConflicts(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
	}{
		{"collection tag reused", Kind{Collection: "deck", Record: "token"}},
		{"record tag reused", Kind{Collection: "binder", Record: "card"}},
		{"record tag used as collection", Kind{Collection: "card", Record: "token"}},
		{"same tag both roles", Kind{Collection: "pile", Record: "pile"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kinds := MustKinds(Kind{Collection: "deck", Record: "card"})
			err := kinds.Register(tt.kind)
			require.ErrorIs(t, err, ErrDuplicateKind)
		})
	}
}

func TestKinds_RequiresBothTags(t *testing.T) {
	kinds := MustKinds()
	require.Error(t, kinds.Register(Kind{Collection: "deck"}))
	require.Error(t, kinds.Register(Kind{Record: "card"}))
}

func TestKinds_ListAndTagsSorted(t *testing.T) {
	kinds := MustKinds(
		Kind{Collection: "deck", Record: "card"},
		Kind{Collection: "bestiary", Record: "monster"},
	)
	list := kinds.List()
	require.Len(t, list, 2)
	require.Equal(t, storage.TypeTag("bestiary"), list[0].Collection)
	require.Equal(t, []storage.TypeTag{"bestiary", "deck", "card", "monster"}, kinds.Tags())
}

func TestMustKinds_PanicsOnConflict(t *testing.T) {
	require.Panics(t, func() {
		MustKinds(Kind{Collection: "deck", Record: "card"}, Kind{Collection: "deck", Record: "x"})
	})
}
