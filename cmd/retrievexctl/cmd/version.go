package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/retrievex/internal/version"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version.Version)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retrievexctl %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
