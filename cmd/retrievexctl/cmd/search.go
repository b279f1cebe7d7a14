package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK     int
	mode     string
	minScore float64
	paths    []string // "a/b/c", one per --path
	format   string   // "text", "json"
}

type searchBody struct {
	QueryText          string     `json:"query_text"`
	TopK               int        `json:"top_k"`
	Mode               string     `json:"mode,omitempty"`
	MinScore           float64    `json:"min_score,omitempty"`
	TaxonomyPathFilter [][]string `json:"taxonomy_path_filter,omitempty"`
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search",
		Long: `Run a search against the retrievex server.

Examples:
  retrievexctl search "rotate api keys"
  retrievexctl search "ERR_CONN_RESET" --mode lexical_only --top-k 5
  retrievexctl search "token refresh" --path docs/security --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("unknown format %q: want text or json", opts.format)
			}
			body := searchBody{
				QueryText: strings.Join(args, " "),
				TopK:      opts.topK,
				Mode:      opts.mode,
				MinScore:  opts.minScore,
			}
			for _, p := range opts.paths {
				body.TaxonomyPathFilter = append(body.TaxonomyPathFilter, splitPath(p))
			}

			var resp result.Response
			header, err := root.client().do(cmd.Context(), http.MethodPost, "/v1/search", body, &resp)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				return writeIndentedJSON(cmd.OutOrStdout(), resp)
			}
			printSearch(cmd.OutOrStdout(), &resp, header.Get("X-Embedding-Tokens"))
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 10, "Number of results to return")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Retrieval mode: hybrid, lexical_only, vector_only")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results with a fused score below this value")
	cmd.Flags().StringArrayVarP(&opts.paths, "path", "p", nil, "Taxonomy path prefix, segments separated by / (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func printSearch(w io.Writer, resp *result.Response, tokens string) {
	for i, c := range resp.Candidates {
		fmt.Fprintf(w, "%2d. %-24s score=%.4f", i+1, c.ChunkID, c.FinalScore)
		if len(c.TaxonomyPath) > 0 {
			fmt.Fprintf(w, "  [%s]", c.TaxonomyPath.String())
		}
		fmt.Fprintln(w)
		if c.TextSnippet != "" {
			fmt.Fprintf(w, "    %s\n", c.TextSnippet)
		}
	}
	if len(resp.Candidates) == 0 {
		fmt.Fprintln(w, "no results")
	}

	fmt.Fprintf(w, "\nlexical=%d vector=%d total=%.1fms cache_hit=%t",
		resp.LexicalCandidateCount, resp.VectorCandidateCount, resp.StageTimings.TotalMs, resp.CacheHit)
	if tokens != "" {
		fmt.Fprintf(w, " embedding_tokens=%s", tokens)
	}
	fmt.Fprintln(w)
	if resp.Degraded {
		fmt.Fprintf(w, "degraded: %s\n", strings.Join(resp.Warnings, ", "))
	} else if len(resp.Warnings) > 0 {
		fmt.Fprintf(w, "warnings: %s\n", strings.Join(resp.Warnings, ", "))
	}
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v) //nolint:wrapcheck // terminal output
}
