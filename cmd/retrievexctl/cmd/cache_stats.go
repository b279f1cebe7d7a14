package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/retrievex/internal/repository/resultcache"
)

func newCacheStatsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "cache-stats",
		Short: "Show result cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stats resultcache.Stats
			if _, err := root.client().do(cmd.Context(), http.MethodGet, "/v1/cache/stats", nil, &stats); err != nil {
				return err
			}
			if asJSON {
				return writeIndentedJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "entries:   %d/%d\nhits:      %d\nmisses:    %d\nevictions: %d\nhit rate:  %.1f%%\n",
				stats.Size, stats.Capacity, stats.Hits, stats.Misses, stats.Evictions, stats.HitRate*100)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}
