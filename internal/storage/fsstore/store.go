// Package fsstore stores catalog assets as YAML documents in a directory
// tree. The tree is the medium: editors, version control and file managers
// may change it underneath the catalog at any time.
package fsstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
)

// ErrOutsideRoot is returned for locations or paths that escape the root.
var ErrOutsideRoot = errors.New("location escapes store root")

// Store is a storage.Store rooted at a directory.
type Store struct {
	root     string
	mu       sync.Mutex
	readOnly bool
}

var _ storage.Store = (*Store)(nil)

// New opens a store rooted at dir. The directory must exist.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string {
	return s.root
}

// SetReadOnly makes every mutating call fail with storage.ErrReadOnly.
func (s *Store) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

// IsAsset reports whether a file name looks like an asset document.
func IsAsset(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// IsHidden reports whether a path element is hidden (dot-prefixed).
func IsHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// Locate converts an absolute path into a location under the root.
func (s *Store) Locate(path string) (storage.Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return storage.Clean(filepath.ToSlash(rel)), nil
}

// Path returns the absolute file path of loc. Only canonical locations are
// accepted, so "..", absolute and empty locations are rejected.
func (s *Store) Path(loc storage.Location) (string, error) {
	if loc == "" || storage.Clean(string(loc)) != loc {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, loc)
	}
	return filepath.Join(s.root, filepath.FromSlash(string(loc))), nil
}

// Enumerate walks the tree and returns the locations of assets with tag.
// Hidden directories are skipped and unreadable documents are ignored.
func (s *Store) Enumerate(tag storage.TypeTag) ([]storage.Location, error) {
	var locs []storage.Location
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsAsset(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug(log.CatStore, "skipping unreadable asset", "path", path, "error", err)
			return nil
		}
		got, err := storage.PeekTag(data)
		if err != nil || got != tag {
			return nil
		}
		loc, err := s.Locate(path)
		if err != nil {
			return nil
		}
		locs = append(locs, loc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerating %s: %w", tag, err)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })
	return locs, nil
}

// Load reads and decodes the asset at loc.
func (s *Store) Load(loc storage.Location) (*storage.Asset, error) {
	path, err := s.Path(loc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", loc, err)
	}
	asset, err := storage.DecodeAsset(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", loc, err)
	}
	return asset, nil
}

// Save encodes asset and writes it atomically through a temp file.
func (s *Store) Save(loc storage.Location, asset *storage.Asset) error {
	if asset == nil {
		return fmt.Errorf("asset cannot be nil")
	}
	if err := s.writable(); err != nil {
		return err
	}
	path, err := s.Path(loc)
	if err != nil {
		return err
	}
	data, err := storage.EncodeAsset(asset)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", loc, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".asset-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", loc, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", loc, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", loc, err)
	}
	log.Debug(log.CatStore, "saved asset", "location", loc, "kind", asset.Tag)
	return nil
}

// Delete removes the asset file at loc.
func (s *Store) Delete(loc storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	path, err := s.Path(loc)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, loc)
		}
		return fmt.Errorf("deleting %s: %w", loc, err)
	}
	return nil
}

// Move renames the asset file, creating destination directories as needed.
func (s *Store) Move(from, to storage.Location) error {
	if err := s.writable(); err != nil {
		return err
	}
	src, err := s.Path(from)
	if err != nil {
		return err
	}
	dst, err := s.Path(to)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, from)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", storage.ErrExists, to)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to %s: %w", from, to, err)
	}
	return nil
}

// IsNestedUnder applies the shared directory locality rule.
func (s *Store) IsNestedUnder(loc, ancestor storage.Location) bool {
	return storage.NestedUnder(loc, ancestor)
}

func (s *Store) writable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return storage.ErrReadOnly
	}
	return nil
}
