package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Cache)
		if err != nil {
			return eris.Wrap(err, "open cache")
		}
		if st == nil {
			zap.L().Info("cache disabled, nothing to prune")
			return nil
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpired(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("pruned expired cache entries",
			zap.String("driver", cfg.Cache.Driver),
			zap.Int("deleted", n),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
