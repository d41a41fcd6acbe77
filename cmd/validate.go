package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/registry"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check identifier and ownership invariants",
	Long: `Report records owned by the wrong collection, duplicate or invalid
identifiers, and records whose collection is missing. Nothing is repaired;
the command exits non-zero when any issue is found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			issues, err := s.catalog.Validate(ctx)
			if err != nil {
				return err
			}
			return printIssues(cmd.OutOrStdout(), issues)
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func printIssues(w io.Writer, issues []registry.Issue) error {
	if len(issues) == 0 {
		fmt.Fprintln(w, okStyle.Render("no issues"))
		return nil
	}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{string(issue.Kind), string(issue.Collection), string(issue.Record), issue.Detail})
	}
	renderTable(w, []string{"ISSUE", "COLLECTION", "RECORD", "DETAIL"}, rows)
	return fmt.Errorf("%d issue(s) found", len(issues))
}
