package watcher_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/storage/fsstore"
	"github.com/zjrosen/catalog/internal/watcher"
)

const debounce = 50 * time.Millisecond

func startWatcher(t *testing.T, setup func(root string)) (string, <-chan storage.ChangeBatch) {
	t.Helper()
	root := t.TempDir()
	if setup != nil {
		setup(root)
	}
	store, err := fsstore.New(root)
	require.NoError(t, err)

	w, err := watcher.New(watcher.Config{Store: store, DebounceDur: debounce})
	require.NoError(t, err, "failed to create watcher")
	t.Cleanup(func() { _ = w.Stop() })

	onChange, err := w.Start()
	require.NoError(t, err, "failed to start watcher")
	return root, onChange
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func next(t *testing.T, ch <-chan storage.ChangeBatch) storage.ChangeBatch {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(time.Second):
		t.Fatal("expected change batch but got timeout")
		return storage.ChangeBatch{}
	}
}

func quiet(t *testing.T, ch <-chan storage.ChangeBatch) {
	t.Helper()
	select {
	case batch := <-ch:
		t.Fatalf("unexpected change batch: %+v", batch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_DebounceMultipleWrites(t *testing.T) {
	root, onChange := startWatcher(t, nil)
	path := filepath.Join(root, "deck.yaml")

	for i := 0; i < 10; i++ {
		write(t, path, fmt.Sprintf("kind: deck\n# %d\n", i))
		time.Sleep(10 * time.Millisecond)
	}

	batch := next(t, onChange)
	require.Equal(t, []storage.Location{"deck.yaml"}, batch.Imported)
	require.Empty(t, batch.Deleted)
	quiet(t, onChange)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	root, onChange := startWatcher(t, func(root string) {
		write(t, filepath.Join(root, ".catalog", "state.yaml"), "x: 1\n")
	})

	write(t, filepath.Join(root, "notes.txt"), "hello")
	write(t, filepath.Join(root, ".catalog", "state.yaml"), "x: 2\n")

	quiet(t, onChange)
}

func TestWatcher_ReportsDeletion(t *testing.T) {
	root, onChange := startWatcher(t, func(root string) {
		write(t, filepath.Join(root, "decks", "a.yaml"), "kind: card\n")
	})

	require.NoError(t, os.Remove(filepath.Join(root, "decks", "a.yaml")))

	batch := next(t, onChange)
	require.Equal(t, []storage.Location{"decks/a.yaml"}, batch.Deleted)
	require.Empty(t, batch.Imported)
}

func TestWatcher_ReportsRenameAsMove(t *testing.T) {
	root, onChange := startWatcher(t, func(root string) {
		write(t, filepath.Join(root, "decks", "a.yaml"), "kind: card\n")
	})

	require.NoError(t, os.Rename(filepath.Join(root, "decks", "a.yaml"), filepath.Join(root, "decks", "b.yaml")))

	batch := next(t, onChange)
	require.Equal(t, []storage.Move{{From: "decks/a.yaml", To: "decks/b.yaml"}}, batch.Moved)
	require.Empty(t, batch.Deleted)
	require.Empty(t, batch.Imported)
}

func TestWatcher_RemovedDirectoryReportsContents(t *testing.T) {
	root, onChange := startWatcher(t, func(root string) {
		write(t, filepath.Join(root, "decks", "a.yaml"), "kind: card\n")
		write(t, filepath.Join(root, "decks", "sub", "b.yaml"), "kind: card\n")
	})

	require.NoError(t, os.RemoveAll(filepath.Join(root, "decks")))

	batch := next(t, onChange)
	require.ElementsMatch(t, []storage.Location{"decks/a.yaml", "decks/sub/b.yaml"}, batch.Deleted)
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	root, onChange := startWatcher(t, nil)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "decks"), 0o750))
	time.Sleep(20 * time.Millisecond)
	write(t, filepath.Join(root, "decks", "a.yaml"), "kind: deck\n")

	batch := next(t, onChange)
	require.Equal(t, []storage.Location{"decks/a.yaml"}, batch.Imported)
}

func TestWatcher_Stop(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	w, err := watcher.New(watcher.DefaultConfig(store))
	require.NoError(t, err, "failed to create watcher")

	_, err = w.Start()
	require.NoError(t, err, "failed to start watcher")

	done := make(chan struct{})
	go func() {
		err := w.Stop()
		assert.NoError(t, err, "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out - possible deadlock")
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := watcher.New(watcher.Config{})
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	cfg := watcher.DefaultConfig(store)

	assert.Same(t, store, cfg.Store)
	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDur)
}
