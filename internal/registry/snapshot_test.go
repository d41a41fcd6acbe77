package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshot_String(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Reload()
	require.NoError(t, err)

	snap := f.reg.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, 3, snap.Records())

	lines := strings.Split(strings.TrimSpace(snap.String()), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "deck "+f.g1.String()))
	require.Contains(t, lines[1], "0 "+f.items[0].String()+" decks/i1.yaml")
}
