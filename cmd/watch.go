package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/catalog"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/paths"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/storage/fsstore"
	"github.com/zjrosen/catalog/internal/watcher"
)

// buildLock marks an external build in progress while it exists.
const buildLock = "build.lock"

const buildPollInterval = 500 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Apply asset changes as they happen",
	Long: `Watch the asset tree and feed every change through the catalog:
new assets get identifiers, copies get fresh ones, moves keep theirs.

While .catalog/build.lock exists, registry refreshes are deferred and run
once when the lock is removed. Only the fs backend can be watched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return withCatalog(cmd, func(_ context.Context, s *session) error {
			store, ok := s.store.(*fsstore.Store)
			if !ok {
				return errors.New("watch requires the fs backend")
			}
			printReport(cmd.OutOrStdout(), s.report)
			return runWatch(ctx, cmd.OutOrStdout(), s.catalog, store)
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, w io.Writer, c *catalog.Catalog, store *fsstore.Store) error {
	wcfg := watcher.DefaultConfig(store)
	if cfg.Watch.Debounce > 0 {
		wcfg.DebounceDur = cfg.Watch.Debounce
	}
	fw, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	changes, err := fw.Start()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, mutedStyle.Render("watching "+store.Root()))

	events := c.Subscribe(ctx)
	build := &buildState{lock: filepath.Join(cfgBase, paths.DirName, buildLock)}
	ticker := time.NewTicker(buildPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch := <-changes:
			handleBatch(ctx, w, c, batch)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			log.Debug(log.CatCLI, "catalog event", "type", ev.Type, "id", ev.Payload.ID, "location", ev.Payload.Location)
		case <-ticker.C:
			build.sync(ctx, w, c)
		}
	}
}

func handleBatch(ctx context.Context, w io.Writer, c *catalog.Catalog, batch storage.ChangeBatch) {
	report := c.HandleChanges(ctx, batch)
	fmt.Fprintln(w, summary("imported", len(batch.Imported), "deleted", len(batch.Deleted), "moved", len(batch.Moved)))
	if report.Changed() {
		printReport(w, report)
	}
}

// buildState mirrors the build lock file into the catalog's build state.
type buildState struct {
	lock     string
	building bool
}

func (b *buildState) sync(ctx context.Context, w io.Writer, c *catalog.Catalog) {
	_, err := os.Stat(b.lock)
	locked := err == nil
	switch {
	case locked && !b.building:
		b.building = true
		c.BuildStarted()
		fmt.Fprintln(w, mutedStyle.Render("build started, deferring refreshes"))
	case !locked && b.building:
		b.building = false
		if c.BuildFinished(ctx) {
			fmt.Fprintln(w, okStyle.Render("build finished, deferred refresh applied"))
		}
	}
}
