package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/catalog"
	"github.com/zjrosen/catalog/internal/identity"
)

var listCmd = &cobra.Command{
	Use:   "list [collection-id]",
	Short: "List collections, or the records of one collection",
	Long: `List every registered collection, or with an identifier, the records
of that collection in sequence order.

Examples:
  catalog list
  catalog list 6f1c2a34-0b7e-4c1d-9a55-1e2f3a4b5c6d`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd, func(ctx context.Context, s *session) error {
			if len(args) == 0 {
				listCollections(cmd.OutOrStdout(), s.catalog)
				return nil
			}
			id, err := identity.Parse(args[0])
			if err != nil {
				return err
			}
			return listRecords(cmd.OutOrStdout(), s.catalog, id)
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func listCollections(w io.Writer, c *catalog.Catalog) {
	cols := c.Collections()
	if len(cols) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no collections"))
		return
	}
	rows := make([][]string, 0, len(cols))
	for _, col := range cols {
		rows = append(rows, []string{
			col.ID().String(),
			string(col.Kind().Collection),
			strconv.Itoa(col.Count()),
			col.Name(),
			string(col.Location()),
		})
	}
	renderTable(w, []string{"ID", "KIND", "RECORDS", "NAME", "LOCATION"}, rows)
}

func listRecords(w io.Writer, c *catalog.Catalog, id identity.ID) error {
	col, ok := c.Collection(id)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownCollection, id)
	}
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(col.Name()), mutedStyle.Render(string(col.Location())))
	rows := make([][]string, 0, col.Count())
	for i, rec := range col.Records() {
		rows = append(rows, []string{strconv.Itoa(i), rec.ID().String(), rec.Name(), string(rec.Location())})
	}
	renderTable(w, []string{"#", "ID", "NAME", "LOCATION"}, rows)
	return nil
}
