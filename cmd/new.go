package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/identity"
	"github.com/zjrosen/catalog/internal/storage"
)

var newFields map[string]string

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create collections and records with fresh identifiers",
}

var newCollectionCmd = &cobra.Command{
	Use:   "collection <kind> <location>",
	Short: "Create a collection asset",
	Long: `Create a collection asset of the given kind at a location relative to
the store root. Only allowed in edit mode.

Examples:
  catalog new collection deck decks/starter.yaml --set name=Starter`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			col, err := s.catalog.CreateCollection(ctx, storage.TypeTag(args[0]), storage.Clean(args[1]), payload(newFields))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("created"), col.ID(), col.Location())
			return nil
		})
	},
}

var newRecordCmd = &cobra.Command{
	Use:   "record <collection-id> <location>",
	Short: "Create a record owned by a collection",
	Long: `Create a record asset owned by the given collection. The location must
be nested under the collection's directory. Only allowed in edit mode.

Examples:
  catalog new record 6f1c2a34-0b7e-4c1d-9a55-1e2f3a4b5c6d decks/fireball.yaml --set name=Fireball`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Parse(args[0])
		if err != nil {
			return err
		}
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			rec, err := s.catalog.CreateRecord(ctx, id, storage.Clean(args[1]), payload(newFields))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", okStyle.Render("created"), rec.ID(), rec.Location())
			return nil
		})
	},
}

func init() {
	newCmd.PersistentFlags().StringToStringVar(&newFields, "set", nil, "payload field (key=value, repeatable)")
	newCmd.AddCommand(newCollectionCmd, newRecordCmd)
	rootCmd.AddCommand(newCmd)
}

func payload(fields map[string]string) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
