// Package result holds the candidates and responses produced by a hybrid search.
package result

import "github.com/kailas-cloud/retrievex/internal/domain/taxonomy"

// Candidate is a single chunk hit moving through the retrieval pipeline.
// Absent channel scores are nil and count as 0 in every computation.
type Candidate struct {
	ChunkID        string            `json:"chunk_id"`
	DocID          string            `json:"doc_id"`
	TextSnippet    string            `json:"text_snippet"`
	LexicalScore   *float64          `json:"lexical_score,omitempty"`
	VectorScore    *float64          `json:"vector_score,omitempty"`
	FusedScore     float64           `json:"fused_score"`
	RerankScore    *float64          `json:"rerank_score,omitempty"`
	FinalScore     float64           `json:"final_score"`
	TaxonomyPath   taxonomy.Path     `json:"taxonomy_path"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
}

// Lexical returns the raw lexical score or 0 when absent.
func (c *Candidate) Lexical() float64 { return valueOr0(c.LexicalScore) }

// Vector returns the raw vector score or 0 when absent.
func (c *Candidate) Vector() float64 { return valueOr0(c.VectorScore) }

// Clone returns a deep copy.
func (c *Candidate) Clone() Candidate {
	out := *c
	out.LexicalScore = clonePtr(c.LexicalScore)
	out.VectorScore = clonePtr(c.VectorScore)
	out.RerankScore = clonePtr(c.RerankScore)
	if c.TaxonomyPath != nil {
		out.TaxonomyPath = append(taxonomy.Path(nil), c.TaxonomyPath...)
	}
	if c.SourceMetadata != nil {
		out.SourceMetadata = make(map[string]string, len(c.SourceMetadata))
		for k, v := range c.SourceMetadata {
			out.SourceMetadata[k] = v
		}
	}
	return out
}

// Score returns a pointer to v, for the optional score fields.
func Score(v float64) *float64 { return &v }

func valueOr0(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
