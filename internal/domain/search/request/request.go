package request

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length in bytes.
	MaxQueryLength = 4096
	DefaultTopK    = 10
	MaxTopK        = 500
	MaxFilterPaths = 32
)

// Request is a validated search query.
type Request struct {
	query      string
	searchMode mode.Mode
	filter     taxonomy.Filter
	topK       int
	minScore   float64
}

// New validates search parameters. An empty query is valid and yields an empty response.
func New(query string, m mode.Mode, filter taxonomy.Filter, topK int, minScore float64) (Request, error) {
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d bytes)", MaxQueryLength)
	}
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, fmt.Errorf("invalid search mode: %q", m)
	}
	if topK < 0 {
		return Request{}, fmt.Errorf("top_k must be >= 0")
	}
	if topK > MaxTopK {
		return Request{}, fmt.Errorf("top_k too large (max %d)", MaxTopK)
	}
	if !(minScore >= 0 && minScore <= 1) { // also rejects NaN
		return Request{}, fmt.Errorf("min_score must be between 0 and 1")
	}
	if len(filter) > MaxFilterPaths {
		return Request{}, fmt.Errorf("too many taxonomy filter paths (max %d)", MaxFilterPaths)
	}
	for i, p := range filter {
		if err := p.Validate(); err != nil {
			return Request{}, fmt.Errorf("taxonomy_path_filter[%d]: %w", i, err)
		}
	}

	return Request{
		query:      query,
		searchMode: m,
		filter:     filter,
		topK:       topK,
		minScore:   minScore,
	}, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// NormalizedQuery returns the query lowercased with whitespace collapsed.
func (r *Request) NormalizedQuery() string {
	return strings.Join(strings.Fields(strings.ToLower(r.query)), " ")
}

// IsEmpty reports whether the query has no searchable text.
func (r *Request) IsEmpty() bool { return strings.TrimSpace(r.query) == "" }

// Mode returns the search strategy.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Filter returns the taxonomy path filter.
func (r *Request) Filter() taxonomy.Filter { return r.filter }

// TopK returns the number of candidates to return.
func (r *Request) TopK() int { return r.topK }

// MinScore returns the minimum fused score threshold.
func (r *Request) MinScore() float64 { return r.minScore }
