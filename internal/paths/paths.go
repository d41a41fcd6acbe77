// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DirName is the per-project state directory.
const DirName = ".catalog"

// ConfigName is the config file name inside DirName.
const ConfigName = "config.yaml"

// ProjectConfig returns the project config path under dir.
func ProjectConfig(dir string) string {
	return filepath.Join(dir, DirName, ConfigName)
}

// UserConfig returns ~/.config/catalog/config.yaml or an empty string if
// the home directory is unavailable.
func UserConfig() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "catalog", ConfigName)
}

// FindProjectConfig walks up from start looking for .catalog/config.yaml.
// Returns the path found, or an empty string.
func FindProjectConfig(start string) string {
	dir, err := filepath.Abs(start)
	if err != nil {
		return ""
	}
	for {
		candidate := ProjectConfig(dir)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolveRoot resolves the asset root from user input. Relative roots are
// taken relative to base (the directory holding the project's .catalog
// dir, or the working directory), and a .catalog/redirect file in the
// resulting directory is followed.
//
// Input normalization:
//   - "" -> base
//   - "assets" -> base/assets
//   - "/abs/assets" -> "/abs/assets"
//
// Redirect handling:
//   - If <root>/.catalog/redirect exists, its content (relative to the
//     .catalog dir) replaces the root. This supports git worktrees sharing
//     one asset tree.
func ResolveRoot(root, base string) string {
	if root == "" {
		root = "."
	}
	if !filepath.IsAbs(root) {
		root = filepath.Join(base, root)
	}
	return followRedirect(filepath.Clean(root))
}

// followRedirect checks for a redirect file and follows it if present.
func followRedirect(root string) string {
	stateDir := filepath.Join(root, DirName)
	content, err := os.ReadFile(filepath.Join(stateDir, "redirect")) //nolint:gosec // redirect path is within .catalog dir
	if err != nil {
		return root
	}

	target := strings.TrimSpace(string(content))
	if target == "" {
		return root
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(stateDir, target))
}
