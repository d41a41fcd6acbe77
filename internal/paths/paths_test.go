package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRoot(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name string
		root string
		want string
	}{
		{"empty uses base", "", base},
		{"relative joins base", "assets", filepath.Join(base, "assets")},
		{"absolute kept", "/srv/assets", "/srv/assets"},
		{"dot segments cleaned", "assets/../other", filepath.Join(base, "other")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ResolveRoot(tt.root, base))
		})
	}
}

func TestResolveRoot_FollowsRedirect(t *testing.T) {
	base := t.TempDir()
	shared := filepath.Join(base, "shared")
	worktree := filepath.Join(base, "worktree")
	require.NoError(t, os.MkdirAll(filepath.Join(worktree, DirName), 0o750))
	require.NoError(t, os.MkdirAll(shared, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(worktree, DirName, "redirect"), []byte("../../shared\n"), 0o600))

	require.Equal(t, shared, ResolveRoot("worktree", base))
}

func TestResolveRoot_EmptyRedirectIgnored(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, DirName), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(base, DirName, "redirect"), []byte("  \n"), 0o600))

	require.Equal(t, base, ResolveRoot("", base))
}

func TestFindProjectConfig(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	require.Empty(t, FindProjectConfig(nested))

	require.NoError(t, os.MkdirAll(filepath.Join(base, DirName), 0o750))
	require.NoError(t, os.WriteFile(ProjectConfig(base), []byte("root: .\n"), 0o600))

	found := FindProjectConfig(nested)
	require.Equal(t, ProjectConfig(base), found)
}
