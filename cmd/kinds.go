package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog/internal/config"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "Show the kind registration table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rows := make([][]string, 0, len(cfg.Kinds))
		for _, k := range cfg.Kinds {
			rows = append(rows, []string{k.Collection, k.Record})
		}
		renderTable(cmd.OutOrStdout(), []string{"COLLECTION", "RECORD"}, rows)
		return nil
	},
}

var kindsAddCmd = &cobra.Command{
	Use:   "add <collection-kind> <record-kind>",
	Short: "Register a collection kind and the record kind it holds",
	Long: `Append a kind to the config's registration table. Each tag may appear
in only one kind.

Examples:
  catalog kinds add level spawn`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		kinds, err := config.AddKind(path, config.KindConfig{Collection: args[0], Record: args[1]}, cfg.Kinds)
		if err != nil {
			return err
		}
		cfg.Kinds = kinds
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s %s\n", okStyle.Render("registered"), args[0], args[1],
			mutedStyle.Render("("+path+")"))
		return nil
	},
}

func init() {
	kindsCmd.AddCommand(kindsAddCmd)
	rootCmd.AddCommand(kindsCmd)
}
