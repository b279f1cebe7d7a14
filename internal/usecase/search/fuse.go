package search

import (
	"sort"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// Fuse merges both channels by chunk id and ranks them by weighted normalized score.
// Each channel is normalized over the candidates it returned; a candidate missing
// from a channel contributes 0 for it. Equal fused scores fall back to the higher
// raw vector score, then the lower chunk id.
func Fuse(lexical, vector []result.Candidate, w FusionWeights) []result.Candidate {
	merged := make(map[string]*result.Candidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	for i := range lexical {
		c := lexical[i].Clone()
		if _, ok := merged[c.ChunkID]; ok {
			continue
		}
		c.VectorScore = nil
		merged[c.ChunkID] = &c
		order = append(order, c.ChunkID)
	}
	for i := range vector {
		v := vector[i].Clone()
		if existing, ok := merged[v.ChunkID]; ok {
			if existing.VectorScore == nil {
				existing.VectorScore = v.VectorScore
			}
			fillMissing(existing, &v)
			continue
		}
		v.LexicalScore = nil
		merged[v.ChunkID] = &v
		order = append(order, v.ChunkID)
	}

	normLex := normalizeChannel(lexical, (*result.Candidate).Lexical, w.Method)
	normVec := normalizeChannel(vector, (*result.Candidate).Vector, w.Method)

	out := make([]result.Candidate, 0, len(order))
	for _, id := range order {
		c := merged[id]
		c.FusedScore = w.Lexical*normLex[id] + w.Vector*normVec[id]
		c.FinalScore = c.FusedScore
		c.RerankScore = nil
		out = append(out, *c)
	}

	sortFused(out)
	return out
}

// normalizeChannel ranks a channel's candidates best first and returns the
// normalized score per chunk id.
func normalizeChannel(
	cands []result.Candidate, score func(*result.Candidate) float64, m NormalizationMethod,
) map[string]float64 {
	type ranked struct {
		id  string
		raw float64
	}
	seen := make(map[string]struct{}, len(cands))
	rs := make([]ranked, 0, len(cands))
	for i := range cands {
		if _, ok := seen[cands[i].ChunkID]; ok {
			continue
		}
		seen[cands[i].ChunkID] = struct{}{}
		rs = append(rs, ranked{id: cands[i].ChunkID, raw: score(&cands[i])})
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].raw != rs[j].raw {
			return rs[i].raw > rs[j].raw
		}
		return rs[i].id < rs[j].id
	})

	raw := make([]float64, len(rs))
	for i, r := range rs {
		raw[i] = r.raw
	}
	norm := m.Normalize(raw)

	out := make(map[string]float64, len(rs))
	for i, r := range rs {
		out[r.id] = norm[i]
	}
	return out
}

func sortFused(cands []result.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if av, bv := a.Vector(), b.Vector(); av != bv {
			return av > bv
		}
		return a.ChunkID < b.ChunkID
	})
}

func fillMissing(dst, src *result.Candidate) {
	if dst.DocID == "" {
		dst.DocID = src.DocID
	}
	if dst.TextSnippet == "" {
		dst.TextSnippet = src.TextSnippet
	}
	if len(dst.TaxonomyPath) == 0 {
		dst.TaxonomyPath = src.TaxonomyPath
	}
	if len(src.SourceMetadata) == 0 {
		return
	}
	if dst.SourceMetadata == nil {
		dst.SourceMetadata = make(map[string]string, len(src.SourceMetadata))
	}
	for k, v := range src.SourceMetadata {
		if _, ok := dst.SourceMetadata[k]; !ok {
			dst.SourceMetadata[k] = v
		}
	}
}

// filterMinScore drops candidates whose fused score is below minScore.
func filterMinScore(cands []result.Candidate, minScore float64) []result.Candidate {
	if minScore <= 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if c.FusedScore >= minScore {
			out = append(out, c)
		}
	}
	return out
}
