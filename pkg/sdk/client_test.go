package retrievex

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
)

func TestNew_NoAddress(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no address provided")
	}
}

func TestNoopEmbedder(t *testing.T) {
	_, err := noopEmbedder{}.Embed(context.Background(), "test")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbedderAdapter(t *testing.T) {
	called := false
	mock := &mockEmbedder{
		fn: func(_ context.Context, text string) (EmbeddingResult, error) {
			called = true
			return EmbeddingResult{
				Embedding:    []float32{1, 2, 3},
				PromptTokens: 5,
				TotalTokens:  10,
			}, nil
		},
	}

	adapter := &embedderAdapter{inner: mock}
	res, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("inner embedder was not called")
	}
	if len(res.Embedding) != 3 {
		t.Errorf("embedding len = %d, want 3", len(res.Embedding))
	}
	if res.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", res.TotalTokens)
	}
	if err := adapter.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check must report healthy, got %v", err)
	}
}

func TestEmbedderAdapter_Error(t *testing.T) {
	mock := &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, errors.New("provider down")
		},
	}

	adapter := &embedderAdapter{inner: mock}
	_, err := adapter.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbedderAdapter_CanceledIsNotProviderError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &mockEmbedder{
		fn: func(ctx context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, ctx.Err()
		},
	}

	_, err := (&embedderAdapter{inner: mock}).Embed(ctx, "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Error("cancellation must not be reported as a provider error")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := defaultClientConfig()
	if cfg.indexName != "retrievex_chunks" || !cfg.rerank {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	WithRedis("localhost:6380", "pass").apply(cfg)
	if cfg.addrs[0] != "localhost:6380" || cfg.password != "pass" {
		t.Errorf("redis = (%v, %q)", cfg.addrs, cfg.password)
	}

	WithQdrant("localhost:6334", "chunks").apply(cfg)
	if cfg.qdrantAddr != "localhost:6334" || cfg.qdrantCollection != "chunks" {
		t.Errorf("qdrant = (%q, %q)", cfg.qdrantAddr, cfg.qdrantCollection)
	}

	WithIndex("kb", "kb:chunk:").apply(cfg)
	if cfg.indexName != "kb" || cfg.keyPrefix != "kb:chunk:" {
		t.Errorf("index = (%q, %q)", cfg.indexName, cfg.keyPrefix)
	}

	WithTimeouts(2*time.Second, time.Second).apply(cfg)
	if cfg.requestTimeout != 2*time.Second || cfg.channelTimeout != time.Second {
		t.Errorf("timeouts = (%v, %v)", cfg.requestTimeout, cfg.channelTimeout)
	}

	WithoutRerank().apply(cfg)
	if cfg.rerank {
		t.Error("expected rerank disabled")
	}

	WithResultCache(100, time.Minute).apply(cfg)
	if cfg.cacheCapacity != 100 || cfg.cacheTTL != time.Minute {
		t.Errorf("cache = (%d, %v)", cfg.cacheCapacity, cfg.cacheTTL)
	}

	WithMetadataFields("title", "url").apply(cfg)
	WithSnippetRunes(200).apply(cfg)
	WithNormalization("rrf").apply(cfg)
	if len(cfg.metadataFields) != 2 || cfg.snippetRunes != 200 || cfg.normalization != "rrf" {
		t.Errorf("unexpected shaping options: %+v", cfg)
	}

	logger := slog.Default()
	WithLogger(logger).apply(cfg)
	if cfg.logger != logger {
		t.Error("expected logger to be set")
	}

	reg := prometheus.NewRegistry()
	WithPrometheus(reg).apply(cfg)
	if cfg.metricsReg != reg {
		t.Error("expected metricsReg to be set")
	}

	mock := &mockEmbedder{}
	WithEmbedder(mock).apply(cfg)
	if cfg.embedder == nil {
		t.Error("expected non-nil embedder")
	}
}

func TestClient_Close_Empty(t *testing.T) {
	c := &Client{}
	c.Close()
	c.Close()
}

func TestClient_Close_ReverseOrder(t *testing.T) {
	var order []int
	c := &Client{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}
	c.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("close order = %v, want [2 1]", order)
	}
}

func TestClient_Search(t *testing.T) {
	lex := 3.5
	var got *request.Request
	svc := &mockSearchUC{fn: func(_ context.Context, req *request.Request) (result.Response, error) {
		got = req
		return result.Response{
			Candidates: []result.Candidate{{
				ChunkID:      "c1",
				DocID:        "d1",
				TextSnippet:  "reset the admin password",
				LexicalScore: &lex,
				FusedScore:   0.9,
				FinalScore:   0.9,
				TaxonomyPath: []string{"docs", "security"},
			}},
			LexicalCandidateCount: 1,
			Degraded:              true,
			Warnings:              []string{result.WarnVectorUnavailable},
			StageTimings:          result.StageTimings{LexicalMs: 4, TotalMs: 6},
		}, nil
	}}
	c := &Client{searchSvc: svc}

	resp, err := c.Search(context.Background(), SearchRequest{
		Query:          "reset admin password",
		TaxonomyFilter: [][]string{{"docs", "security"}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got.Mode() != mode.Hybrid || got.TopK() != request.DefaultTopK {
		t.Errorf("defaults not applied: mode=%q topK=%d", got.Mode(), got.TopK())
	}
	if len(got.Filter()) != 1 || got.Filter()[0].String() != "docs > security" {
		t.Errorf("filter = %v", got.Filter())
	}

	if len(resp.Hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(resp.Hits))
	}
	h := resp.Hits[0]
	if h.ChunkID != "c1" || h.Snippet != "reset the admin password" || h.VectorScore != nil {
		t.Errorf("unexpected hit: %+v", h)
	}
	if h.LexicalScore == nil || *h.LexicalScore != 3.5 {
		t.Errorf("lexical score = %v", h.LexicalScore)
	}
	if !resp.Degraded || resp.Warnings[0] != result.WarnVectorUnavailable {
		t.Errorf("degradation lost: %+v", resp)
	}
	if resp.Timings.Lexical != 4 || resp.Timings.Total != 6 {
		t.Errorf("timings = %+v", resp.Timings)
	}
}

func TestClient_Search_TopK(t *testing.T) {
	tests := []struct {
		name string
		topK *int
		want int
	}{
		{"unset uses default", nil, request.DefaultTopK},
		{"zero is kept", Ptr(0), 0},
		{"explicit", Ptr(5), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *request.Request
			c := &Client{searchSvc: &mockSearchUC{fn: func(_ context.Context, req *request.Request) (result.Response, error) {
				got = req
				return result.Response{}, nil
			}}}

			resp, err := c.Search(context.Background(), SearchRequest{Query: "reset admin password", TopK: tt.topK})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got.TopK() != tt.want {
				t.Errorf("top_k = %d, want %d", got.TopK(), tt.want)
			}
			if tt.want == 0 && len(resp.Hits) != 0 {
				t.Errorf("top_k=0 must return no hits, got %d", len(resp.Hits))
			}
		})
	}
}

func TestClient_Search_InvalidRequest(t *testing.T) {
	c := &Client{searchSvc: &mockSearchUC{fn: func(context.Context, *request.Request) (result.Response, error) {
		t.Fatal("service must not be called for invalid input")
		return result.Response{}, nil
	}}}

	tests := []SearchRequest{
		{Query: "q", Mode: "fuzzy"},
		{Query: "q", TopK: Ptr(-1)},
		{Query: "q", TaxonomyFilter: [][]string{{}}},
	}
	for _, sr := range tests {
		if _, err := c.Search(context.Background(), sr); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", sr, err)
		}
	}
}

func TestClient_Search_ChannelsUnavailable(t *testing.T) {
	c := &Client{searchSvc: &mockSearchUC{fn: func(context.Context, *request.Request) (result.Response, error) {
		return result.Response{}, domain.ErrChannelsUnavailable
	}}}

	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	if !errors.Is(err, ErrChannelsUnavailable) {
		t.Fatalf("expected ErrChannelsUnavailable, got %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	c := &Client{healthSvc: &mockHealthUC{report: healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{
			healthuc.ComponentLexicalStore: healthuc.CheckOK,
			healthuc.ComponentVectorStore:  healthuc.CheckError,
		},
	}}}

	hs := c.Health(context.Background())
	if hs.Status != "degraded" {
		t.Errorf("status = %q, want degraded", hs.Status)
	}
	if hs.Checks[healthuc.ComponentVectorStore] != "error" {
		t.Errorf("checks = %v", hs.Checks)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrPoolExhausted) {
		t.Error("pool exhaustion must be retryable")
	}
	if IsRetryable(ErrInvalidRequest) {
		t.Error("invalid request must not be retryable")
	}
}

func TestObserver_NilSafe(t *testing.T) {
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("search", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("search", time.Now(), errors.New("fail"))
	obs.observeStatus("search", time.Now(), "degraded", nil)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "retrievex_sdk_operations_total" {
			found = true
			if len(f.GetMetric()) != 3 {
				t.Errorf("expected 3 metric samples, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("retrievex_sdk_operations_total not found")
	}
}

func TestObserver_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("first observer: %v", err)
	}
	if _, err := newObserver(nil, reg); err != nil {
		t.Fatalf("second observer on the same registry: %v", err)
	}
}

func TestObserver_WithLogger(t *testing.T) {
	obs, err := newObserver(slog.Default(), nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	obs.observe("test.op", time.Now(), nil)
	obs.observe("test.op", time.Now(), errors.New("test error"))
	obs.observeStatus("test.op", time.Now(), "degraded", nil)
}

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockSearchUC struct {
	fn func(ctx context.Context, req *request.Request) (result.Response, error)
}

func (m *mockSearchUC) Search(ctx context.Context, req *request.Request) (result.Response, error) {
	return m.fn(ctx, req)
}

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(context.Context) healthuc.Report { return m.report }
