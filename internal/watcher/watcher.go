// Package watcher turns file system events under a store root into debounced
// storage change batches.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/storage/fsstore"
)

// Watcher monitors a store root recursively and emits change batches.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     *fsstore.Store
	debounce  time.Duration
	onChange  chan storage.ChangeBatch
	done      chan struct{}

	// known holds the absolute paths of asset files seen so far, so that
	// removing or renaming a directory can report the files it contained.
	known map[string]struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Store       *fsstore.Store
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(store *fsstore.Store) Config {
	return Config{
		Store:       store,
		DebounceDur: 250 * time.Millisecond,
	}
}

// New creates a new store watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("watcher requires a store")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		store:     cfg.Store,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan storage.ChangeBatch, 1),
		done:      make(chan struct{}),
		known:     make(map[string]struct{}),
	}, nil
}

// Start adds every visible directory under the root and begins watching.
// Returns a channel that receives one batch per quiet period.
func (w *Watcher) Start() (<-chan storage.ChangeBatch, error) {
	if err := w.addTree(w.store.Root(), nil); err != nil {
		return nil, err
	}
	go w.loop()
	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// addTree watches dir and its visible subdirectories. Asset files found on
// the way are recorded as known and, when found is non-nil, collected.
func (w *Watcher) addTree(dir string, found *[]string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != w.store.Root() && fsstore.IsHidden(d.Name()) {
				return filepath.SkipDir
			}
			if err := w.fsWatcher.Add(path); err != nil {
				return fmt.Errorf("watching directory %s: %w", path, err)
			}
			return nil
		}
		if fsstore.IsAsset(d.Name()) && !fsstore.IsHidden(d.Name()) {
			w.known[path] = struct{}{}
			if found != nil {
				*found = append(*found, path)
			}
		}
		return nil
	})
}

// pending accumulates events between flushes.
type pending struct {
	paths map[string]struct{}
	moves [][2]string
	// renamed is the source of the last rename, waiting for its create.
	renamed string
}

func newPending() *pending {
	return &pending{paths: make(map[string]struct{})}
}

func (p *pending) empty() bool {
	return len(p.paths) == 0 && len(p.moves) == 0 && p.renamed == ""
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer *time.Timer
		batch = newPending()
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.record(batch, event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if batch.empty() {
				continue
			}
			changes := w.flush(batch)
			batch = newPending()
			if changes.IsEmpty() {
				continue
			}
			select {
			case w.onChange <- changes:
			case <-w.done:
				return
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "watch error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// record folds one event into the pending batch and reports whether it was
// relevant. A rename immediately followed by a create is taken as a move.
func (w *Watcher) record(p *pending, event fsnotify.Event) bool {
	path := event.Name
	if w.ignored(path) {
		return false
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			var found []string
			if err := w.addTree(path, &found); err != nil {
				log.ErrorErr(log.CatWatcher, "failed to watch new directory", err, "path", path)
			}
			for _, f := range found {
				p.paths[f] = struct{}{}
			}
			if from := p.renamed; from != "" {
				p.renamed = ""
				w.moveTree(p, from, path)
			}
			return true
		}
		if !fsstore.IsAsset(path) {
			return false
		}
		w.known[path] = struct{}{}
		if from := p.renamed; from != "" && fsstore.IsAsset(from) {
			p.renamed = ""
			delete(p.paths, from)
			p.moves = append(p.moves, [2]string{from, path})
			return true
		}
		p.paths[path] = struct{}{}

	case event.Op.Has(fsnotify.Rename):
		// An earlier unpaired rename stays in paths and settles as a removal.
		p.renamed = path
		w.forgetTree(p, path)

	case event.Op.Has(fsnotify.Remove):
		w.forgetTree(p, path)

	case event.Op.Has(fsnotify.Write):
		if !fsstore.IsAsset(path) {
			return false
		}
		p.paths[path] = struct{}{}

	default:
		return false
	}
	return true
}

// forgetTree marks path, and every known asset below it, as changed.
func (w *Watcher) forgetTree(p *pending, path string) {
	prefix := path + string(filepath.Separator)
	for known := range w.known {
		if known == path || strings.HasPrefix(known, prefix) {
			p.paths[known] = struct{}{}
			delete(w.known, known)
		}
	}
}

// moveTree pairs known assets under a renamed directory with their new
// paths below to.
func (w *Watcher) moveTree(p *pending, from, to string) {
	prefix := from + string(filepath.Separator)
	for path := range p.paths {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		dest := filepath.Join(to, strings.TrimPrefix(path, prefix))
		if _, ok := w.known[dest]; !ok {
			continue
		}
		delete(p.paths, path)
		delete(p.paths, dest)
		p.moves = append(p.moves, [2]string{path, dest})
	}
}

func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.store.Root(), path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if fsstore.IsHidden(part) {
			return true
		}
	}
	return false
}

// flush converts the pending events into a batch by checking what exists
// on disk now. Moves whose endpoints no longer agree degrade to plain
// deletions and imports. A moved file written again in the same window is
// reported under both.
func (w *Watcher) flush(p *pending) storage.ChangeBatch {
	var batch storage.ChangeBatch
	paths := make(map[string]struct{}, len(p.paths))
	for path := range p.paths {
		paths[path] = struct{}{}
	}

	for _, mv := range p.moves {
		from, to := mv[0], mv[1]
		if !exists(from) && exists(to) {
			fromLoc, err1 := w.store.Locate(from)
			toLoc, err2 := w.store.Locate(to)
			if err1 == nil && err2 == nil {
				batch.Moved = append(batch.Moved, storage.Move{From: fromLoc, To: toLoc})
				continue
			}
		}
		paths[from] = struct{}{}
		paths[to] = struct{}{}
	}

	for path := range paths {
		loc, err := w.store.Locate(path)
		if err != nil {
			continue
		}
		if exists(path) {
			batch.Imported = append(batch.Imported, loc)
		} else {
			batch.Deleted = append(batch.Deleted, loc)
		}
	}
	sort.Slice(batch.Imported, func(i, j int) bool { return batch.Imported[i] < batch.Imported[j] })
	sort.Slice(batch.Deleted, func(i, j int) bool { return batch.Deleted[i] < batch.Deleted[j] })

	log.Debug(log.CatWatcher, "change batch",
		"imported", len(batch.Imported), "deleted", len(batch.Deleted), "moved", len(batch.Moved))
	return batch
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
