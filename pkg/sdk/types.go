package retrievex

import (
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// SearchMode selects the retrieval channels.
type SearchMode string

// Search mode constants.
const (
	ModeHybrid      SearchMode = "hybrid"
	ModeLexicalOnly SearchMode = "lexical_only"
	ModeVectorOnly  SearchMode = "vector_only"
)

// SearchRequest is a hybrid search query.
// Nil TopK means the default of 10; TopK of 0 returns no candidates.
// Empty Mode means hybrid.
type SearchRequest struct {
	Query          string
	Mode           SearchMode
	TopK           *int
	MinScore       float64
	TaxonomyFilter [][]string
}

// Ptr returns a pointer to v, for optional request fields such as TopK.
func Ptr[T any](v T) *T { return &v }

// Hit is a ranked chunk. Channel scores are nil when the channel did not return the chunk.
type Hit struct {
	ChunkID      string
	DocID        string
	Snippet      string
	LexicalScore *float64
	VectorScore  *float64
	FusedScore   float64
	RerankScore  *float64
	FinalScore   float64
	TaxonomyPath []string
	Metadata     map[string]string
}

// Timings are per-stage wall-clock durations in milliseconds.
type Timings struct {
	Lexical float64
	Vector  float64
	Embed   float64
	Fuse    float64
	Rerank  float64
	Total   float64
}

// Response is the outcome of a search, hits ordered by final score.
type Response struct {
	Hits                  []Hit
	LexicalCandidateCount int
	VectorCandidateCount  int
	CacheHit              bool
	Degraded              bool
	Warnings              []string
	Timings               Timings
}

func fromDomainResponse(r *result.Response) *Response {
	hits := make([]Hit, len(r.Candidates))
	for i := range r.Candidates {
		c := r.Candidates[i].Clone()
		hits[i] = Hit{
			ChunkID:      c.ChunkID,
			DocID:        c.DocID,
			Snippet:      c.TextSnippet,
			LexicalScore: c.LexicalScore,
			VectorScore:  c.VectorScore,
			FusedScore:   c.FusedScore,
			RerankScore:  c.RerankScore,
			FinalScore:   c.FinalScore,
			TaxonomyPath: []string(c.TaxonomyPath),
			Metadata:     c.SourceMetadata,
		}
	}
	t := r.StageTimings
	return &Response{
		Hits:                  hits,
		LexicalCandidateCount: r.LexicalCandidateCount,
		VectorCandidateCount:  r.VectorCandidateCount,
		CacheHit:              r.CacheHit,
		Degraded:              r.Degraded,
		Warnings:              append([]string(nil), r.Warnings...),
		Timings: Timings{
			Lexical: t.LexicalMs,
			Vector:  t.VectorMs,
			Embed:   t.EmbedMs,
			Fuse:    t.FuseMs,
			Rerank:  t.RerankMs,
			Total:   t.TotalMs,
		},
	}
}
