package main

import (
	"github.com/spf13/cobra"
)

var searchFlags requestFlags

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Look up part specifications through web search",
	Example: `  spec-search search --supplier Parker --part 3/8-RA --spec "Thread Size" --spec Material
  spec-search search --supplier Parker --parts-file parts.csv --spec Weight --xlsx results.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := searchFlags.request(cmd)
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		return searchFlags.emit(cmd.OutOrStdout(), env.Search.Search(cmd.Context(), req))
	},
}

func init() {
	searchFlags.register(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
