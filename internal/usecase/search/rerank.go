package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// RerankResult is the secondary score of one input document.
type RerankResult struct {
	// Index is the position in the documents slice passed to Rerank.
	Index int
	Score float64
}

// Reranker scores documents against the query with a secondary relevance signal.
// Implementations may return results in any order; every input index must
// appear exactly once.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}

// NoOpReranker keeps the input order.
type NoOpReranker struct{}

// Rerank returns decreasing scores in input order.
func (NoOpReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	out := make([]RerankResult, len(documents))
	for i := range documents {
		out[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	return out, nil
}

// TermOverlapReranker scores a document by the share of distinct query terms it contains.
type TermOverlapReranker struct{}

// Rerank implements Reranker.
func (TermOverlapReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	terms := StrictTerms(query)
	out := make([]RerankResult, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = RerankResult{Index: i, Score: termOverlap(terms, doc)}
	}
	return out, nil
}

func termOverlap(terms []string, doc string) float64 {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, w := range StrictTerms(doc) {
		words[w] = struct{}{}
	}
	var hit int
	for _, t := range terms {
		if _, ok := words[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

var (
	_ Reranker = NoOpReranker{}
	_ Reranker = TermOverlapReranker{}
)

// DefaultRerankWeight is the share of the gap to the fused leader a
// candidate can close with a perfect rerank score.
const DefaultRerankWeight = 0.5

// rerankTop reorders the first m candidates and appends the rest in fused order.
// Rerank scores are min-max normalized over the window to r in [0,1] and blended
// as fused + weight*r*(leader - fused). The fused leader keeps first place and
// the tail never overtakes the window.
// On any failure, including a panic inside r, it returns the input unchanged and an error.
func rerankTop(
	ctx context.Context, r Reranker, query string, cands []result.Candidate, m int, weight float64,
) (out []result.Candidate, err error) {
	if m > len(cands) {
		m = len(cands)
	}
	if m <= 0 {
		return cands, nil
	}

	head := cands[:m]
	docs := make([]string, m)
	for i := range head {
		docs[i] = head[i].TextSnippet
	}

	scores, err := callReranker(ctx, r, query, docs)
	if err != nil {
		return cands, err
	}
	if err := validateRerank(scores, m); err != nil {
		return cands, fmt.Errorf("%w: %w", domain.ErrRerankFailed, err)
	}

	raw := make([]float64, m)
	for _, s := range scores {
		raw[s.Index] = s.Score
	}
	norm := rerankSignal(raw)
	leader := head[0].FusedScore

	reranked := make([]result.Candidate, m)
	for i := range head {
		c := head[i]
		c.RerankScore = result.Score(raw[i])
		c.FinalScore = c.FusedScore + weight*norm[i]*(leader-c.FusedScore)
		reranked[i] = c
	}
	// Stable: equal final scores keep fused order.
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].FinalScore > reranked[j].FinalScore
	})

	out = make([]result.Candidate, 0, len(cands))
	out = append(out, reranked...)
	return append(out, cands[m:]...), nil
}

// rerankSignal maps raw rerank scores onto [0,1]. A window where every
// score is equal carries no signal and maps to 0.
func rerankSignal(raw []float64) []float64 {
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return make([]float64, len(raw))
	}
	return MinMaxNormalize(raw)
}

func callReranker(ctx context.Context, r Reranker, query string, docs []string) (scores []RerankResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			scores = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrRerankFailed, p)
		}
	}()
	scores, err = r.Rerank(ctx, query, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankFailed, err)
	}
	return scores, nil
}

func validateRerank(scores []RerankResult, n int) error {
	if len(scores) != n {
		return fmt.Errorf("reranker returned %d results for %d documents", len(scores), n)
	}
	seen := make([]bool, n)
	for _, s := range scores {
		if s.Index < 0 || s.Index >= n || seen[s.Index] {
			return fmt.Errorf("reranker returned invalid index %d", s.Index)
		}
		seen[s.Index] = true
	}
	return nil
}
