package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/enforcer"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Assign and repair identifiers, then index collections",
	Long: `Run a full enforcement pass over the store and rebuild the registry.

Assets without an identifier get a fresh one. Assets whose identifier is
already owned by another asset (for example a copied file) get a new
identifier; the earliest location keeps the original.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			printScan(cmd.OutOrStdout(), s)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func printScan(w io.Writer, s *session) {
	snap := s.catalog.Snapshot()
	fmt.Fprintln(w, summary("collections", len(snap), "records", snap.Records()))
	printReport(w, s.report)
}

// printReport lists what an enforcement pass changed.
func printReport(w io.Writer, report enforcer.Report) {
	if !report.Changed() && len(report.Moved) == 0 && len(report.Removed) == 0 {
		fmt.Fprintln(w, okStyle.Render("identifiers unique"))
		return
	}
	for _, loc := range report.Assigned {
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("assigned"), loc)
	}
	for _, r := range report.Repaired {
		fmt.Fprintf(w, "%s %s %s -> %s %s\n", warnStyle.Render("repaired"), r.Location,
			r.Old.Short(), r.New.Short(), mutedStyle.Render("(kept by "+string(r.Owner)+")"))
	}
	for _, m := range report.Moved {
		fmt.Fprintf(w, "%s %s -> %s\n", mutedStyle.Render("moved"), m.From, m.To)
	}
	for _, loc := range report.Removed {
		fmt.Fprintf(w, "%s %s\n", mutedStyle.Render("removed"), loc)
	}
}
