package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/config"
	"github.com/kailas-cloud/retrievex/internal/db"
	dbQdrant "github.com/kailas-cloud/retrievex/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/retrievex/internal/db/redis"
	"github.com/kailas-cloud/retrievex/internal/domain"
	logpkg "github.com/kailas-cloud/retrievex/internal/logger"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/repository/embcache"
	"github.com/kailas-cloud/retrievex/internal/repository/resultcache"
	searchrepo "github.com/kailas-cloud/retrievex/internal/repository/search"
	taxonomyrepo "github.com/kailas-cloud/retrievex/internal/repository/taxonomy"
	chiTransport "github.com/kailas-cloud/retrievex/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/retrievex/internal/transport/nats"
	openaiEmb "github.com/kailas-cloud/retrievex/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/retrievex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/retrievex/internal/usecase/search"
	"github.com/kailas-cloud/retrievex/internal/version"
)

// vectorStore is the vector backend as seen by the composition root.
type vectorStore interface {
	db.VectorSearcher
	healthuc.Pinger
}

// queryEmbedder is the assembled embedding chain; every decorator forwards health checks.
type queryEmbedder interface {
	domain.Embedder
	domain.HealthChecker
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting retrievex search server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("vector_backend", cfg.Vector.Backend),
	)

	metrics.Register()

	ctx := context.Background()

	// Redis carries the lexical index, the embedding cache and the taxonomy list.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:            cfg.Database.Addrs,
		Username:         cfg.Database.Username,
		Password:         cfg.Database.Password,
		DB:               cfg.Database.DB,
		BlockingPoolSize: cfg.Database.BlockingPoolSize,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	vectors, closeVectors, err := openVectorStore(ctx, &cfg, store)
	if err != nil {
		logger.Fatal("Failed to open vector store", zap.Error(err))
	}
	defer closeVectors()

	if cfg.Index.Ensure {
		ensureChunkIndex(ctx, &cfg, store, logger)
	}

	queryEmbedder := buildEmbedder(&cfg, store, logger)
	logger.Info("Query embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", cfg.Embedding.Cache.Enabled),
	)

	cache, err := resultcache.New(resultcache.Config{
		Capacity:      cfg.Cache.Capacity,
		DefaultTTL:    time.Duration(cfg.Cache.TTLSec) * time.Second,
		SweepInterval: time.Duration(cfg.Cache.SweepIntervalSec) * time.Second,
	}, resultcache.WithMetrics(resultcache.Metrics{
		Lookups:   metrics.ResultCacheTotal,
		Evictions: metrics.ResultCacheEvictionsTotal,
		Entries:   metrics.ResultCacheEntries,
	}))
	if err != nil {
		logger.Fatal("Failed to create result cache", zap.Error(err))
	}

	var events searchuc.EventSink
	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL, nats.Name("retrievex"))
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		events = natsTransport.NewPublisher(nc, cfg.Events.Subject, logger)
		logger.Info("Search events enabled", zap.String("subject", cfg.Events.Subject))
	}

	searchSvc, err := buildSearchService(&cfg, store, vectors, queryEmbedder, cache, events, logger)
	if err != nil {
		logger.Fatal("Failed to create search service", zap.Error(err))
	}

	healthSvc := healthuc.New(store, vectors, queryEmbedder)

	server := chiTransport.NewServer(searchSvc, cache, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	cache.Shutdown()

	logger.Info("Server stopped gracefully")
}

// openVectorStore returns the configured vector backend. The redis backend
// shares the database connection and needs no separate close.
func openVectorStore(ctx context.Context, cfg *config.Config, store *dbRedis.Store) (vectorStore, func(), error) {
	if cfg.Vector.Backend != config.VectorBackendQdrant {
		return store, func() {}, nil
	}

	qs, err := dbQdrant.New(cfg.Vector.QdrantAddr, cfg.Vector.QdrantCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second)
	defer cancel()
	if err := qs.Ping(pingCtx); err != nil {
		qs.Close()
		return nil, nil, err
	}
	if cfg.Vector.EnsureCollection {
		if err := qs.EnsureCollection(pingCtx, cfg.Embedding.Dimensions); err != nil {
			qs.Close()
			return nil, nil, err
		}
	}
	return qs, qs.Close, nil
}

// ensureChunkIndex creates the FT index over chunk hashes when it is missing.
func ensureChunkIndex(ctx context.Context, cfg *config.Config, store *dbRedis.Store, logger *zap.Logger) {
	def, err := searchrepo.ChunkIndex(cfg.Index.Name, cfg.Index.KeyPrefix, cfg.Embedding.Dimensions,
		searchrepo.HNSWConfig{M: cfg.Index.HNSWM, EFConstruct: cfg.Index.HNSWEFConstruct})
	if err != nil {
		logger.Fatal("Invalid chunk index definition", zap.Error(err))
	}
	created, err := searchrepo.EnsureIndex(ctx, store, def)
	if err != nil {
		logger.Fatal("Failed to ensure chunk index", zap.Error(err))
	}
	logger.Info("Chunk index ready", zap.String("index", def.Name), zap.Bool("created", created))
}

// buildEmbedder assembles the decorator chain: OpenAI -> RateLimited -> Cached -> Instrumented -> Instruction
func buildEmbedder(cfg *config.Config, store db.KVStore, logger *zap.Logger) queryEmbedder {
	ec := cfg.Embedding

	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:      ec.APIKey,
		BaseURL:     ec.BaseURL,
		Model:       ec.Model,
		Dimensions:  ec.Dimensions,
		Provider:    ec.Provider,
		HTTPTimeout: time.Duration(ec.HTTPTimeoutMs) * time.Millisecond,
		Logger:      logger,
	})

	var embedder queryEmbedder = base
	if ec.RateLimitQPS > 0 {
		embedder = embeddinguc.NewRateLimitedEmbedder(embedder, ec.RateLimitQPS, ec.RateLimitBurst)
	}
	if ec.Cache.Enabled {
		embedder = embcache.New(embedder, store, embcache.Config{
			KeyPrefix: cfg.Storage.KeyPrefix + "emb_cache:",
			Model:     ec.Model,
			TTL:       time.Duration(ec.Cache.TTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, ec.Provider, ec.Model, time.Duration(ec.SlowMs)*time.Millisecond, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if ec.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, ec.QueryInstruction)
	}
	return embedder
}

func buildSearchService(
	cfg *config.Config,
	store *dbRedis.Store,
	vectors db.VectorSearcher,
	embedder domain.Embedder,
	cache searchuc.ResultCache,
	events searchuc.EventSink,
	logger *zap.Logger,
) (*searchuc.Service, error) {
	sc := cfg.Search

	repo := searchrepo.New(store, vectors, searchrepo.Config{
		IndexName:      cfg.Index.Name,
		KeyPrefix:      cfg.Index.KeyPrefix,
		MetadataFields: cfg.Index.MetadataFields,
		SnippetRunes:   cfg.Index.SnippetRunes,
	})

	method, err := searchuc.ParseNormalization(sc.Analyzer.Normalization)
	if err != nil {
		return nil, fmt.Errorf("search.analyzer.normalization: %w", err)
	}
	analyzer, err := searchuc.NewAnalyzer(searchuc.AnalyzerConfig{
		ShortQueryMaxTokens:     sc.Analyzer.ShortQueryMaxTokens,
		LongQueryMinTokens:      sc.Analyzer.LongQueryMinTokens,
		DefaultLexicalWeight:    sc.Analyzer.DefaultLexicalWeight,
		ShortLexicalWeight:      sc.Analyzer.ShortLexicalWeight,
		LongLexicalWeight:       sc.Analyzer.LongLexicalWeight,
		ExactMatchLexicalWeight: sc.Analyzer.ExactMatchLexicalWeight,
		Normalization:           method,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	lexical := searchuc.NewLexicalRetriever(repo, searchuc.NewPool(sc.LexicalPoolSize, sc.PoolWait()))
	vector := searchuc.NewVectorRetriever(embedder, repo, searchuc.NewPool(sc.VectorPoolSize, sc.PoolWait()))

	svcCfg := searchuc.Config{
		RequestTimeout:      sc.RequestTimeout(),
		ChannelTimeout:      sc.ChannelTimeout(),
		CandidateMultiplier: sc.CandidateMultiplier,
		MaxCandidates:       sc.MaxCandidates,
		RerankEnabled:       sc.RerankEnabled(),
		RerankTopM:          sc.Rerank.TopM,
		RerankWeight:        sc.RerankWeight(),
		CacheTTL:            time.Duration(cfg.Cache.TTLSec) * time.Second,
		TaxonomyVersion:     cfg.Taxonomy.Version,
		ValidateTaxonomy:    cfg.Taxonomy.Validate,
	}

	opts := []searchuc.Option{
		searchuc.WithCache(cache),
		searchuc.WithRecorder(metrics.SearchRecorder{}),
		searchuc.WithLogger(logger),
	}
	if sc.RerankEnabled() {
		opts = append(opts, searchuc.WithReranker(searchuc.TermOverlapReranker{}))
	}
	if cfg.Taxonomy.Validate {
		taxonomy := taxonomyrepo.New(store, cfg.Storage.KeyPrefix, time.Duration(cfg.Taxonomy.MemoTTLSec)*time.Second)
		opts = append(opts, searchuc.WithTaxonomy(taxonomy))
	}
	if events != nil {
		opts = append(opts, searchuc.WithEvents(events))
	}

	svc, err := searchuc.New(lexical, vector, analyzer, svcCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("search service: %w", err)
	}
	return svc, nil
}
