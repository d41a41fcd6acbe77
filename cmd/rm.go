package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/identity"
)

var rmCascade bool

var rmCmd = &cobra.Command{
	Use:   "rm <collection-id>",
	Short: "Delete a collection",
	Long: `Delete a collection asset and unregister it. With cascade_delete set in
the config (or --cascade), the collection's records are deleted too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Parse(args[0])
		if err != nil {
			return err
		}
		if rmCascade {
			cfg.CascadeDelete = true
		}
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			col, ok := s.catalog.Collection(id)
			if !ok {
				return fmt.Errorf("no collection with identifier %s", id)
			}
			loc, count := col.Location(), col.Count()
			if err := s.catalog.DeleteCollection(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("deleted"), loc)
			if cfg.CascadeDelete && count > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", mutedStyle.Render(fmt.Sprintf("and %d record(s)", count)))
			}
			return nil
		})
	},
}

func init() {
	rmCmd.Flags().BoolVar(&rmCascade, "cascade", false, "also delete the collection's records")
	rootCmd.AddCommand(rmCmd)
}
