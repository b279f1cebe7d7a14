package cmd

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
)

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show component health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report healthReport
			// 503 still carries a report.
			if _, err := root.client().do(cmd.Context(), http.MethodGet, "/health", nil, &report,
				http.StatusServiceUnavailable); err != nil {
				return err
			}
			if asJSON {
				if err := writeIndentedJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "status: %s\n", report.Status)
				names := make([]string, 0, len(report.Checks))
				for name := range report.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(out, "  %-14s %s\n", name, report.Checks[name])
				}
			}
			if report.Status == "error" {
				return fmt.Errorf("server unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw report as JSON")
	return cmd
}
