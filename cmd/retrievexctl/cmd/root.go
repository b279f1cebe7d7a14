// Package cmd provides the CLI commands for retrievexctl.
package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/retrievex/internal/version"
)

const (
	envServerURL     = "RETRIEVEX_URL"
	defaultServerURL = "http://localhost:8080"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	server  string
	timeout time.Duration
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

// NewRootCmd creates the root command for the retrievexctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "retrievexctl",
		Short: "Query a running retrievex search server",
		Long: `retrievexctl talks to the retrievex HTTP API.

It runs hybrid searches, reports component health and
prints result cache statistics.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("retrievexctl version {{.Version}}\n")

	server := os.Getenv(envServerURL)
	if server == "" {
		server = defaultServerURL
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "retrievex base URL (env "+envServerURL+")")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "HTTP request timeout")

	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newCacheStatsCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
