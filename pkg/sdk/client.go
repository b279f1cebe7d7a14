package retrievex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/retrievex/internal/db"
	dbQdrant "github.com/kailas-cloud/retrievex/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/retrievex/internal/db/redis"
	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
	"github.com/kailas-cloud/retrievex/internal/repository/resultcache"
	searchrepo "github.com/kailas-cloud/retrievex/internal/repository/search"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/retrievex/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

type searchUseCase interface {
	Search(ctx context.Context, req *request.Request) (result.Response, error)
}

// vectorBackend is a vector store the health check can probe.
type vectorBackend interface {
	db.VectorSearcher
	healthuc.Pinger
}

// Client is the retrievex embedded engine entry point. It is safe for concurrent use.
type Client struct {
	store     db.Pinger
	searchSvc searchUseCase
	healthSvc healthUseCase
	closers   []func()
	obs       *observer
}

// New connects to the configured stores and assembles the search pipeline.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("retrievex: database address required (use WithRedis)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("retrievex: create redis store: %w", err)
	}
	closers := []func(){store.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		closeAll()
		return nil, fmt.Errorf("retrievex: database not ready: %w", err)
	}

	var vectors vectorBackend = store
	if cfg.qdrantAddr != "" {
		qs, err := dbQdrant.New(cfg.qdrantAddr, cfg.qdrantCollection)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("retrievex: create qdrant store: %w", err)
		}
		closers = append(closers, qs.Close)
		vectors = qs
	}

	c, err := wireClient(store, vectors, cfg, obs)
	if err != nil {
		closeAll()
		return nil, err
	}
	c.closers = append(closers, c.closers...)
	return c, nil
}

func wireClient(store *dbRedis.Store, vectors vectorBackend, cfg *clientConfig, obs *observer) (*Client, error) {
	repo := searchrepo.New(store, vectors, searchrepo.Config{
		IndexName:      cfg.indexName,
		KeyPrefix:      cfg.keyPrefix,
		MetadataFields: cfg.metadataFields,
		SnippetRunes:   cfg.snippetRunes,
	})

	// Without an embedder the vector channel fails and hybrid degrades to lexical.
	var emb *embedderAdapter
	if cfg.embedder != nil {
		emb = &embedderAdapter{inner: cfg.embedder}
	}
	var domEmb searchuc.Embedder = noopEmbedder{}
	var healthEmb healthuc.EmbeddingChecker
	if emb != nil {
		domEmb = emb
		healthEmb = emb
	}

	acfg := searchuc.DefaultAnalyzerConfig()
	method, err := searchuc.ParseNormalization(cfg.normalization)
	if err != nil {
		return nil, fmt.Errorf("retrievex: %w", err)
	}
	acfg.Normalization = method
	analyzer, err := searchuc.NewAnalyzer(acfg)
	if err != nil {
		return nil, fmt.Errorf("retrievex: analyzer: %w", err)
	}

	scfg := searchuc.DefaultConfig()
	if cfg.requestTimeout > 0 {
		scfg.RequestTimeout = cfg.requestTimeout
	}
	if cfg.channelTimeout > 0 {
		scfg.ChannelTimeout = cfg.channelTimeout
	}
	scfg.RerankEnabled = cfg.rerank

	var searchOpts []searchuc.Option
	if cfg.rerank {
		searchOpts = append(searchOpts, searchuc.WithReranker(searchuc.TermOverlapReranker{}))
	}

	var closers []func()
	if cfg.cacheCapacity > 0 {
		cache, err := resultcache.New(resultcache.Config{
			Capacity:   cfg.cacheCapacity,
			DefaultTTL: cfg.cacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("retrievex: result cache: %w", err)
		}
		if cfg.cacheTTL > 0 {
			scfg.CacheTTL = cfg.cacheTTL
		}
		searchOpts = append(searchOpts, searchuc.WithCache(cache))
		closers = append(closers, cache.Shutdown)
	}

	searchSvc, err := searchuc.New(
		searchuc.NewLexicalRetriever(repo, nil),
		searchuc.NewVectorRetriever(domEmb, repo, nil),
		analyzer, scfg, searchOpts...,
	)
	if err != nil {
		return nil, fmt.Errorf("retrievex: %w", err)
	}

	return &Client{
		store:     store,
		searchSvc: searchSvc,
		healthSvc: healthuc.New(store, vectors, healthEmb),
		closers:   closers,
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search runs a hybrid search. A degraded response is returned without error;
// when every requested channel fails the error wraps ErrChannelsUnavailable.
func (c *Client) Search(ctx context.Context, sr SearchRequest) (_ *Response, err error) {
	start := time.Now()
	status := ""
	defer func() { c.obs.observeStatus("search", start, status, err) }()

	req, err := toDomainRequest(&sr)
	if err != nil {
		return nil, err
	}

	resp, err := c.searchSvc.Search(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if resp.Degraded {
		status = "degraded"
	}
	return fromDomainResponse(&resp), nil
}

func toDomainRequest(sr *SearchRequest) (request.Request, error) {
	m, err := mode.Parse(string(sr.Mode))
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	topK := request.DefaultTopK
	if sr.TopK != nil {
		topK = *sr.TopK
	}
	var filter taxonomy.Filter
	for _, segs := range sr.TaxonomyFilter {
		filter = append(filter, taxonomy.Path(segs))
	}
	req, err := request.New(sr.Query, m, filter, topK, sr.MinScore)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return req, nil
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// HealthCheck delegates when the wrapped embedder exposes one.
func (a *embedderAdapter) HealthCheck(ctx context.Context) error {
	if hc, ok := a.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent adapter
	}
	return nil
}

// noopEmbedder returns an error on Embed call (used when no embedder configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf(
		"%w: embedder not configured (use WithEmbedder)", domain.ErrEmbeddingProviderError,
	)
}
