package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/paths"
	"github.com/zjrosen/catalog/internal/registry"
)

// snapshotFile holds the registry snapshot recorded by the last reload.
const snapshotFile = "snapshot.txt"

var reloadDiff bool

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the registry from storage",
	Long: `Rebuild the registry from storage and record a snapshot of it.

Reloading is idempotent: a second reload with no storage changes leaves the
registry untouched. With --diff, the new snapshot is compared against the
one recorded by the previous reload.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			w := cmd.OutOrStdout()
			result, err := s.catalog.Reload(ctx)
			if err != nil {
				return err
			}
			snap := s.catalog.Snapshot()
			fmt.Fprintln(w, summary(
				"collections", len(snap),
				"records", snap.Records(),
				"skipped", len(result.Skipped),
				"misplaced", len(result.Misplaced),
			))

			path := filepath.Join(cfgBase, paths.DirName, snapshotFile)
			previous, err := readSnapshot(path)
			if err != nil {
				return err
			}
			if reloadDiff {
				printSnapshotDiff(w, previous, snap.String())
			}
			return writeSnapshot(path, snap)
		})
	},
}

func init() {
	reloadCmd.Flags().BoolVar(&reloadDiff, "diff", false, "show changes since the previous reload")
	rootCmd.AddCommand(reloadCmd)
}

func readSnapshot(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading snapshot: %w", err)
	}
	return string(data), nil
}

func writeSnapshot(path string, snap registry.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(snap.String()), 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// diffLine is one line of a line-level diff.
type diffLine struct {
	Op   diffmatchpatch.Operation
	Text string
}

// lineDiff compares two texts line by line.
func lineDiff(before, after string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out []diffLine
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, diffLine{Op: d.Type, Text: strings.TrimSuffix(line, "\n")})
		}
	}
	return out
}

func printSnapshotDiff(w io.Writer, before, after string) {
	changed := false
	for _, line := range lineDiff(before, after) {
		switch line.Op {
		case diffmatchpatch.DiffInsert:
			fmt.Fprintln(w, addedStyle.Render("+ "+line.Text))
			changed = true
		case diffmatchpatch.DiffDelete:
			fmt.Fprintln(w, removedStyle.Render("- "+line.Text))
			changed = true
		}
	}
	if !changed {
		fmt.Fprintln(w, mutedStyle.Render("no changes since last reload"))
	}
}
