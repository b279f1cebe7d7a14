package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

// memIndex is an in-memory corpus serving both channels with filter support.
type memIndex struct {
	chunks []result.Candidate

	lexicalErr error
	vectorErr  error
	delay      time.Duration

	lexicalCalls atomic.Int32
	vectorCalls  atomic.Int32

	mu        sync.Mutex
	lastTerms [][]string
	lastK     int
}

func (m *memIndex) SearchLexical(
	ctx context.Context, terms []string, filter taxonomy.Filter, k int,
) ([]result.Candidate, error) {
	m.lexicalCalls.Add(1)
	m.mu.Lock()
	m.lastTerms = append(m.lastTerms, terms)
	m.lastK = k
	m.mu.Unlock()
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.lexicalErr != nil {
		return nil, m.lexicalErr
	}

	var out []result.Candidate
	for _, c := range m.chunks {
		if !filter.Matches(c.TaxonomyPath) {
			continue
		}
		text := strings.ToLower(c.TextSnippet)
		var score float64
		for _, t := range terms {
			score += float64(strings.Count(text, t))
		}
		if score == 0 {
			continue
		}
		c = c.Clone()
		c.LexicalScore = result.Score(score)
		out = append(out, c)
	}
	return topBy(out, (*result.Candidate).Lexical, k), nil
}

func (m *memIndex) SearchVector(
	ctx context.Context, _ []float32, filter taxonomy.Filter, k int,
) ([]result.Candidate, error) {
	m.vectorCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.vectorErr != nil {
		return nil, m.vectorErr
	}

	var out []result.Candidate
	for _, c := range m.chunks {
		if !filter.Matches(c.TaxonomyPath) || c.VectorScore == nil {
			continue
		}
		c = c.Clone()
		c.LexicalScore = nil
		out = append(out, c)
	}
	return topBy(out, (*result.Candidate).Vector, k), nil
}

func (m *memIndex) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func topBy(cands []result.Candidate, score func(*result.Candidate) float64, k int) []result.Candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := score(&cands[i]), score(&cands[j])
		if si != sj {
			return si > sj
		}
		return cands[i].ChunkID < cands[j].ChunkID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// chunk builds a corpus entry; vecScore < 0 leaves it out of the vector index.
func chunk(id, text string, vecScore float64, path ...string) result.Candidate {
	c := result.Candidate{ChunkID: id, DocID: "doc-" + id, TextSnippet: text, TaxonomyPath: path}
	if vecScore >= 0 {
		c.VectorScore = result.Score(vecScore)
	}
	return c
}

func testCorpus() []result.Candidate {
	return []result.Candidate{
		chunk("c1", "machine learning models learn from data; machine learning", 0.91, "Technology", "AI", "ML"),
		chunk("c2", "an introduction to machine learning", 0.88, "Technology", "AI"),
		chunk("c3", "machine learning for cooking recipes", 0.40, "Lifestyle", "Food"),
		chunk("c4", "deep learning is a branch of machine learning", 0.86, "Technology", "AI", "DL"),
		chunk("c5", "machine learning hardware accelerators", 0.55, "Technology", "Hardware"),
		chunk("c6", "neural networks approximate functions", 0.80, "Technology", "AI"),
	}
}

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}, TotalTokens: 3}, nil
}

// mapCache is a concurrency-safe ResultCache without eviction.
type mapCache struct {
	mu     sync.Mutex
	data   map[string]result.Response
	getErr error
	puts   int
}

func newMapCache() *mapCache { return &mapCache{data: map[string]result.Response{}} }

func (c *mapCache) Get(_ context.Context, key string) (result.Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return result.Response{}, false, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return result.Response{}, false, nil
	}
	return v.Clone(), true, nil
}

func (c *mapCache) Put(_ context.Context, key string, resp result.Response, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[key] = resp.Clone()
	return nil
}

type mockTaxonomy struct {
	paths []taxonomy.Path
	err   error
}

func (m *mockTaxonomy) GetFilterPaths(context.Context, string) ([]taxonomy.Path, error) {
	return m.paths, m.err
}

type recordedSearch struct {
	mode, outcome string
}

type mockRecorder struct {
	mu       sync.Mutex
	searches []recordedSearch
	failures map[string]string
}

func (m *mockRecorder) ObserveSearch(mode, outcome string, _ result.StageTimings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, recordedSearch{mode, outcome})
}

func (m *mockRecorder) ChannelFailure(channel, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]string{}
	}
	m.failures[channel] = reason
}

// funcRetriever adapts a function to ChannelRetriever.
type funcRetriever func(ctx context.Context, query string, filter taxonomy.Filter, k int) ChannelOutcome

func (f funcRetriever) Retrieve(ctx context.Context, query string, filter taxonomy.Filter, k int) ChannelOutcome {
	return f(ctx, query, filter, k)
}

type testEnv struct {
	index    *memIndex
	embedder *mockEmbedder
	cache    *mapCache
	recorder *mockRecorder
	svc      *Service
}

func newTestEnv(t *testing.T, cfg Config, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		index:    &memIndex{chunks: testCorpus()},
		embedder: &mockEmbedder{},
		cache:    newMapCache(),
		recorder: &mockRecorder{},
	}
	analyzer, err := NewAnalyzer(DefaultAnalyzerConfig())
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	base := []Option{
		WithCache(env.cache),
		WithRecorder(env.recorder),
		WithReranker(TermOverlapReranker{}),
	}
	svc, err := New(
		NewLexicalRetriever(env.index, nil),
		NewVectorRetriever(env.embedder, env.index, nil),
		analyzer, cfg, append(base, opts...)...,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.svc = svc
	return env
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.ChannelTimeout = time.Second
	return cfg
}

var errBackendDown = errors.New("connection refused")

type mockEvents struct {
	mu     sync.Mutex
	events []result.Event
}

func (m *mockEvents) SearchCompleted(_ context.Context, ev result.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}
