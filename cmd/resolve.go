package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/reference"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <collection-id>:<record-id>",
	Short: "Resolve an indirect reference to a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := reference.Parse(args[0])
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			rec, ok := s.catalog.Resolve(ctx, ref)
			if !ok {
				return fmt.Errorf("reference %s does not resolve", ref)
			}
			renderTable(cmd.OutOrStdout(), []string{"ID", "NAME", "LOCATION"},
				[][]string{{rec.ID().String(), rec.Name(), string(rec.Location())}})
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
