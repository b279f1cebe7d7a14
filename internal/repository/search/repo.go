package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/retrievex/internal/db"
	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

// Chunk hash fields.
const (
	FieldChunkID      = "chunk_id"
	FieldDocID        = "doc_id"
	FieldContent      = "__content"
	FieldVector       = "__vector"
	FieldTaxonomy     = "__taxonomy"
	FieldTaxonomyPath = "taxonomy_path"
	fieldVectorScore  = "__vector_score"
	fieldPrefixes     = "taxonomy_prefixes"
)

// Config locates the chunk index and shapes returned candidates.
type Config struct {
	IndexName string
	KeyPrefix string
	// MetadataFields are returned alongside the base fields as source metadata.
	MetadataFields []string
	// SnippetRunes truncates text snippets; 0 keeps the full chunk text.
	SnippetRunes int
}

// Repo reads chunk candidates from the lexical and vector indexes.
type Repo struct {
	text   db.TextSearcher
	vector db.VectorSearcher
	cfg    Config
}

// New creates a search repository. text and vector may be the same store.
func New(text db.TextSearcher, vector db.VectorSearcher, cfg Config) *Repo {
	return &Repo{text: text, vector: vector, cfg: cfg}
}

// SearchLexical runs a BM25 query over sanitized terms, best first.
func (r *Repo) SearchLexical(
	ctx context.Context, terms []string, filter taxonomy.Filter, k int,
) ([]result.Candidate, error) {
	sr, err := r.text.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.cfg.IndexName,
		Terms:        terms,
		PathFilter:   filterLiterals(filter),
		TopK:         k,
		ReturnFields: r.returnFields(),
	})
	if err != nil {
		if errors.Is(err, db.ErrQuerySyntax) {
			return nil, fmt.Errorf("search bm25 %s: %w: %w", r.cfg.IndexName, domain.ErrQuerySyntax, err)
		}
		return nil, fmt.Errorf("search bm25 %s: %w", r.cfg.IndexName, err)
	}

	out := r.toCandidates(sr, func(c *result.Candidate, score float64) {
		c.LexicalScore = result.Score(score)
	})
	sortByScore(out, (*result.Candidate).Lexical)
	return out, nil
}

// SearchVector runs a KNN query with the query embedding, best first.
func (r *Repo) SearchVector(
	ctx context.Context, vector []float32, filter taxonomy.Filter, k int,
) ([]result.Candidate, error) {
	sr, err := r.vector.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		Vector:       vector,
		K:            k,
		PathFilter:   filterLiterals(filter),
		ReturnFields: append(r.returnFields(), fieldVectorScore),
	})
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.cfg.IndexName, err)
	}

	out := r.toCandidates(sr, func(c *result.Candidate, score float64) {
		c.VectorScore = result.Score(score)
	})
	sortByScore(out, (*result.Candidate).Vector)
	return out, nil
}

func (r *Repo) returnFields() []string {
	fields := []string{FieldChunkID, FieldDocID, FieldContent, FieldTaxonomyPath}
	return append(fields, r.cfg.MetadataFields...)
}

func (r *Repo) toCandidates(sr *db.SearchResult, setScore func(*result.Candidate, float64)) []result.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	out := make([]result.Candidate, 0, len(sr.Entries))
	seen := make(map[string]bool, len(sr.Entries))
	for _, entry := range sr.Entries {
		c := r.parseEntry(entry)
		if c.ChunkID == "" || seen[c.ChunkID] {
			continue
		}
		seen[c.ChunkID] = true
		setScore(&c, entry.Score)
		out = append(out, c)
	}
	return out
}

// parseEntry maps flat hash or payload fields onto a candidate.
func (r *Repo) parseEntry(entry db.SearchEntry) result.Candidate {
	c := result.Candidate{ChunkID: strings.TrimPrefix(entry.Key, r.cfg.KeyPrefix)}
	meta := make(map[string]string)

	for k, v := range entry.Fields {
		switch k {
		case FieldChunkID:
			if v != "" {
				c.ChunkID = v
			}
		case FieldDocID:
			c.DocID = v
		case FieldContent:
			c.TextSnippet = truncateRunes(v, r.cfg.SnippetRunes)
		case FieldTaxonomyPath:
			// undecodable paths are reported as absent rather than failing the channel
			if p, err := taxonomy.Decode(v); err == nil {
				c.TaxonomyPath = p
			}
		case FieldVector, FieldTaxonomy, fieldPrefixes, fieldVectorScore:
		default:
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		c.SourceMetadata = meta
	}
	return c
}

func filterLiterals(f taxonomy.Filter) []string {
	if f.IsEmpty() {
		return nil
	}
	lits := make([]string, len(f))
	for i, p := range f {
		lits[i] = taxonomy.Literal(p)
	}
	return lits
}

// sortByScore orders descending by score, then ascending by chunk id.
func sortByScore(cs []result.Candidate, score func(*result.Candidate) float64) {
	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := score(&cs[i]), score(&cs[j])
		if si != sj {
			return si > sj
		}
		return cs[i].ChunkID < cs[j].ChunkID
	})
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
