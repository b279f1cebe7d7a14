package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
	"github.com/kailas-cloud/retrievex/internal/logger"
)

// Outcomes reported to the Recorder besides error kinds.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeCacheHit = "cache_hit"
	OutcomeEmpty    = "empty"
)

var pipelineStages = []string{
	result.StageCacheCheck, result.StageLexical, result.StageVector,
	result.StageFuse, result.StageRerank, result.StageCacheStore,
}

// ChannelRetriever fetches candidates for one channel. Failures are carried in the outcome.
type ChannelRetriever interface {
	Retrieve(ctx context.Context, query string, filter taxonomy.Filter, k int) ChannelOutcome
}

// Config tunes the search pipeline.
type Config struct {
	RequestTimeout time.Duration
	// ChannelTimeout bounds each retrieval channel; it must be below RequestTimeout.
	ChannelTimeout      time.Duration
	CandidateMultiplier int
	MaxCandidates       int
	RerankEnabled       bool
	RerankTopM          int
	// RerankWeight in [0,1] bounds how far the reranker can move a candidate
	// toward the fused leader; 0 keeps fused order.
	RerankWeight        float64
	CacheTTL            time.Duration
	TaxonomyVersion     string
	ValidateTaxonomy    bool
}

// DefaultConfig returns the stock pipeline settings.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      time.Second,
		ChannelTimeout:      700 * time.Millisecond,
		CandidateMultiplier: 4,
		MaxCandidates:       200,
		RerankEnabled:       true,
		RerankTopM:          20,
		RerankWeight:        DefaultRerankWeight,
		CacheTTL:            5 * time.Minute,
	}
}

// Validate checks timeouts and pool sizes.
func (c Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.ChannelTimeout <= 0 || c.ChannelTimeout >= c.RequestTimeout {
		errs = append(errs, errors.New("channel timeout must be positive and below the request timeout"))
	}
	if c.CandidateMultiplier < 1 {
		errs = append(errs, errors.New("candidate multiplier must be >= 1"))
	}
	if c.MaxCandidates < 1 {
		errs = append(errs, errors.New("max candidates must be >= 1"))
	}
	if c.RerankEnabled && c.RerankTopM < 1 {
		errs = append(errs, errors.New("rerank top M must be >= 1"))
	}
	if !(c.RerankWeight >= 0 && c.RerankWeight <= 1) {
		errs = append(errs, errors.New("rerank weight must be in [0,1]"))
	}
	return errors.Join(errs...)
}

// Option configures a Service.
type Option func(*Service)

// WithReranker sets the reranker used for the top-M fused candidates.
func WithReranker(r Reranker) Option {
	return func(s *Service) { s.reranker = r }
}

// WithCache enables the response cache.
func WithCache(c ResultCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTaxonomy enables filter validation against the taxonomy service.
func WithTaxonomy(t TaxonomyReader) Option {
	return func(s *Service) { s.taxonomy = t }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithEvents streams the per-request observability event to sink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service runs hybrid search: cache check, parallel retrieval, fusion, rerank, cache store.
type Service struct {
	lexical  ChannelRetriever
	vector   ChannelRetriever
	analyzer *Analyzer
	reranker Reranker
	cache    ResultCache
	taxonomy TaxonomyReader
	recorder Recorder
	events   EventSink
	logger   *zap.Logger
	cfg      Config
}

// New creates a search service.
func New(
	lexical, vector ChannelRetriever, analyzer *Analyzer, cfg Config, opts ...Option,
) (*Service, error) {
	if lexical == nil || vector == nil {
		return nil, errors.New("both channel retrievers are required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("search config: %w", err)
	}
	s := &Service{
		lexical:  lexical,
		vector:   vector,
		analyzer: analyzer,
		logger:   zap.NewNop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search runs req through the pipeline. When every requested channel fails it
// returns the partial response together with an ErrChannelsUnavailable error.
func (s *Service) Search(ctx context.Context, req *request.Request) (result.Response, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "search", trace.WithAttributes(
		attribute.String("search.mode", string(req.Mode())),
		attribute.Int("search.top_k", req.TopK()),
	))
	defer span.End()

	resp := newResponse("not reached")
	err := s.run(ctx, req, &resp)
	resp.StageTimings.TotalMs = ms(time.Since(start))

	span.SetAttributes(
		attribute.Bool("search.cache_hit", resp.CacheHit),
		attribute.Bool("search.degraded", resp.Degraded),
		attribute.Int("search.returned", len(resp.Candidates)),
	)
	failSpan(span, err)

	s.observe(ctx, req, &resp, err)
	return resp, err
}

func (s *Service) run(ctx context.Context, req *request.Request, resp *result.Response) error {
	if req.IsEmpty() || req.TopK() == 0 {
		resp.Stages = skippedStages("empty request")
		return nil
	}

	if err := s.checkFilter(ctx, req, resp); err != nil {
		return err
	}

	key := CacheKey(req, s.cfg.TaxonomyVersion)
	if s.lookup(ctx, key, resp) {
		return nil
	}

	lex, vec := s.retrieve(ctx, req)
	s.recordChannel(ctx, resp, lex, req.Mode().UsesLexical())
	s.recordChannel(ctx, resp, vec, req.Mode().UsesVector())

	lexOK := req.Mode().UsesLexical() && !lex.Failed()
	vecOK := req.Mode().UsesVector() && !vec.Failed()
	if !lexOK && !vecOK {
		var errs []error
		for _, out := range []ChannelOutcome{lex, vec} {
			if out.Failed() {
				errs = append(errs, out.Err)
			}
		}
		return fmt.Errorf("%w: %w", domain.ErrChannelsUnavailable, errors.Join(errs...))
	}
	if req.Mode() == mode.Hybrid && (!lexOK || !vecOK) {
		resp.Degraded = true
	}

	weights := s.weights(req, lexOK, vecOK)
	fuseStart := time.Now()
	cands := Fuse(lex.Candidates, vec.Candidates, weights)
	cands = filterMinScore(cands, req.MinScore())
	resp.StageTimings.FuseMs = ms(time.Since(fuseStart))
	fuseStatus := result.StatusOK
	if resp.Degraded {
		fuseStatus = result.StatusDegraded
	}
	resp.SetStage(result.StageFuse, fuseStatus, fmt.Sprintf("%s %.2f/%.2f %s",
		weights.Class, weights.Lexical, weights.Vector, weights.Method))

	cands = s.rerank(ctx, req, cands, resp)
	if len(cands) > req.TopK() {
		cands = cands[:req.TopK()]
	}
	resp.Candidates = cands

	s.store(ctx, key, resp)
	return nil
}

// checkFilter rejects filter paths unknown to the taxonomy. An unreachable
// taxonomy service only adds a warning.
func (s *Service) checkFilter(ctx context.Context, req *request.Request, resp *result.Response) error {
	if !s.cfg.ValidateTaxonomy || s.taxonomy == nil || req.Filter().IsEmpty() {
		return nil
	}
	valid, err := s.taxonomy.GetFilterPaths(ctx, s.cfg.TaxonomyVersion)
	if err != nil {
		resp.AddWarning(result.WarnTaxonomyUnavailable)
		s.log(ctx).Warn("taxonomy unavailable, filter not validated", zap.Error(err))
		return nil
	}
	for i, p := range req.Filter() {
		if !isKnownPrefix(p, valid) {
			return fmt.Errorf("%w: taxonomy_path_filter[%d] %q is not a known taxonomy path",
				domain.ErrInvalidRequest, i, p.String())
		}
	}
	return nil
}

func isKnownPrefix(p taxonomy.Path, valid []taxonomy.Path) bool {
	for _, v := range valid {
		if v.HasPrefix(p) {
			return true
		}
	}
	return false
}

// lookup serves a cached response. Cache errors count as a miss.
func (s *Service) lookup(ctx context.Context, key string, resp *result.Response) bool {
	if s.cache == nil {
		resp.SetStage(result.StageCacheCheck, result.StatusSkipped, "cache disabled")
		return false
	}
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		resp.AddWarning(result.WarnCacheUnavailable)
		resp.SetStage(result.StageCacheCheck, result.StatusFailed, err.Error())
		s.log(ctx).Warn("result cache get failed", zap.Error(err))
		return false
	}
	if !ok {
		resp.SetStage(result.StageCacheCheck, result.StatusOK, "miss")
		return false
	}

	warnings := resp.Warnings
	*resp = cached
	resp.CacheHit = true
	resp.StageTimings = result.StageTimings{}
	resp.Stages = skippedStages("cache hit")
	resp.SetStage(result.StageCacheCheck, result.StatusOK, "hit")
	for _, w := range warnings {
		resp.AddWarning(w)
	}
	return true
}

// retrieve runs the channels required by the mode concurrently and waits for both.
func (s *Service) retrieve(ctx context.Context, req *request.Request) (lex, vec ChannelOutcome) {
	k := s.candidatePool(req.TopK())
	lex = ChannelOutcome{Channel: ChannelLexical}
	vec = ChannelOutcome{Channel: ChannelVector}

	// Channel goroutines never return an error, so gctx is only cancelled with ctx.
	g, gctx := errgroup.WithContext(ctx)
	if req.Mode().UsesLexical() {
		g.Go(func() error {
			lex = s.runChannel(gctx, s.lexical, ChannelLexical, req, k)
			return nil
		})
	}
	if req.Mode().UsesVector() {
		g.Go(func() error {
			vec = s.runChannel(gctx, s.vector, ChannelVector, req, k)
			return nil
		})
	}
	_ = g.Wait()
	return lex, vec
}

// runChannel calls r under the channel sub-deadline. It returns when the
// deadline passes even if r does not honour ctx.
func (s *Service) runChannel(
	ctx context.Context, r ChannelRetriever, channel string, req *request.Request, k int,
) ChannelOutcome {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ChannelTimeout)
	defer cancel()
	cctx, span := tracer.Start(cctx, "search."+channel)
	defer span.End()

	start := time.Now()
	done := make(chan ChannelOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- finish(ChannelOutcome{
					Channel: channel,
					Err:     fmt.Errorf("%s: panic: %v", channel, p),
				}, start)
			}
		}()
		done <- r.Retrieve(cctx, req.Query(), req.Filter(), k)
	}()

	var out ChannelOutcome
	select {
	case out = <-done:
	case <-cctx.Done():
		out = finish(channelFailure(cctx, ChannelOutcome{Channel: channel}, cctx.Err()), start)
	}
	span.SetAttributes(attribute.Int("search.candidates", len(out.Candidates)))
	failSpan(span, out.Err)
	return out
}

func (s *Service) recordChannel(ctx context.Context, resp *result.Response, out ChannelOutcome, used bool) {
	if !used {
		resp.SetStage(out.Channel, result.StatusSkipped, "not used by mode")
		return
	}

	switch out.Channel {
	case ChannelLexical:
		resp.StageTimings.LexicalMs = ms(out.Elapsed)
		resp.LexicalCandidateCount = len(out.Candidates)
	case ChannelVector:
		resp.StageTimings.VectorMs = ms(out.Elapsed)
		resp.StageTimings.EmbedMs = ms(out.EmbedElapsed)
		resp.VectorCandidateCount = len(out.Candidates)
	}

	if out.Failed() {
		resp.SetStage(out.Channel, result.StatusFailed, out.Err.Error())
		resp.AddWarning(out.Channel + "_unavailable")
		if out.TimedOut {
			resp.AddWarning(out.Channel + "_timeout")
		}
		if s.recorder != nil {
			s.recorder.ChannelFailure(out.Channel, out.FailureReason())
		}
		s.log(ctx).Warn("retrieval channel failed",
			zap.String("channel", out.Channel),
			zap.String("reason", out.FailureReason()),
			zap.Error(out.Err),
		)
		return
	}
	if out.Fallback {
		resp.AddWarning(result.WarnLexicalFallback)
		resp.SetStage(out.Channel, result.StatusDegraded, "query rejected by parser")
		return
	}
	resp.SetStage(out.Channel, result.StatusOK, "")
}

// weights picks fusion weights. Single-channel runs give the surviving channel all the weight.
func (s *Service) weights(req *request.Request, lexOK, vecOK bool) FusionWeights {
	w := s.analyzer.Analyze(req.Query())
	switch {
	case !vecOK:
		w.Lexical, w.Vector = 1, 0
	case !lexOK:
		w.Lexical, w.Vector = 0, 1
	}
	return w
}

func (s *Service) rerank(
	ctx context.Context, req *request.Request, cands []result.Candidate, resp *result.Response,
) []result.Candidate {
	if s.reranker == nil || !s.cfg.RerankEnabled {
		resp.SetStage(result.StageRerank, result.StatusSkipped, "disabled")
		return cands
	}
	if len(cands) < 2 {
		resp.SetStage(result.StageRerank, result.StatusSkipped, "too few candidates")
		return cands
	}

	start := time.Now()
	rctx, span := tracer.Start(ctx, "search.rerank")
	out, err := rerankTop(rctx, s.reranker, req.Query(), cands, s.cfg.RerankTopM, s.cfg.RerankWeight)
	failSpan(span, err)
	span.End()
	resp.StageTimings.RerankMs = ms(time.Since(start))
	if err != nil {
		resp.AddWarning(result.WarnRerankSkipped)
		resp.SetStage(result.StageRerank, result.StatusFailed, err.Error())
		s.log(ctx).Warn("rerank failed, keeping fused order", zap.Error(err))
		return cands
	}
	resp.SetStage(result.StageRerank, result.StatusOK, "")
	return out
}

// store caches clean, complete responses only.
func (s *Service) store(ctx context.Context, key string, resp *result.Response) {
	switch {
	case s.cache == nil:
		resp.SetStage(result.StageCacheStore, result.StatusSkipped, "cache disabled")
		return
	case !cacheable(resp):
		resp.SetStage(result.StageCacheStore, result.StatusSkipped, "response has warnings")
		return
	case ctx.Err() != nil:
		resp.SetStage(result.StageCacheStore, result.StatusSkipped, "request ended")
		return
	}

	resp.SetStage(result.StageCacheStore, result.StatusOK, "")
	if err := s.cache.Put(ctx, key, *resp, s.cfg.CacheTTL); err != nil {
		resp.AddWarning(result.WarnCacheUnavailable)
		resp.SetStage(result.StageCacheStore, result.StatusFailed, err.Error())
		s.log(ctx).Warn("result cache put failed", zap.Error(err))
	}
}

func cacheable(resp *result.Response) bool {
	if resp.Degraded {
		return false
	}
	for _, w := range resp.Warnings {
		if w != result.WarnLexicalFallback {
			return false
		}
	}
	return true
}

// candidatePool is the per-channel fetch size: top_k × multiplier, clamped to [top_k, max].
func (s *Service) candidatePool(topK int) int {
	k := min(topK*s.cfg.CandidateMultiplier, s.cfg.MaxCandidates)
	return max(k, topK)
}

func (s *Service) observe(ctx context.Context, req *request.Request, resp *result.Response, err error) {
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = string(domain.KindOf(err))
	case resp.CacheHit:
		outcome = OutcomeCacheHit
	case resp.Degraded:
		outcome = OutcomeDegraded
	case req.IsEmpty() || req.TopK() == 0:
		outcome = OutcomeEmpty
	}
	if s.recorder != nil {
		s.recorder.ObserveSearch(string(req.Mode()), outcome, resp.StageTimings)
	}

	ev := result.Event{
		QueryHash:             QueryHash(req),
		Mode:                  string(req.Mode()),
		Outcome:               outcome,
		TopK:                  req.TopK(),
		LexicalCandidateCount: resp.LexicalCandidateCount,
		VectorCandidateCount:  resp.VectorCandidateCount,
		Returned:              len(resp.Candidates),
		StageTimings:          resp.StageTimings,
		CacheHit:              resp.CacheHit,
		Degraded:              resp.Degraded,
		TopFusedScore:         resp.TopFusedScore(),
		Warnings:              resp.Warnings,
		Timestamp:             time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}

	fields := []zap.Field{
		zap.String("query_hash", ev.QueryHash),
		zap.String("mode", ev.Mode),
		zap.Int("top_k", ev.TopK),
		zap.Int("lexical_candidate_count", ev.LexicalCandidateCount),
		zap.Int("vector_candidate_count", ev.VectorCandidateCount),
		zap.Int("returned", ev.Returned),
		zap.Float64("lexical_ms", ev.StageTimings.LexicalMs),
		zap.Float64("vector_ms", ev.StageTimings.VectorMs),
		zap.Float64("embed_ms", ev.StageTimings.EmbedMs),
		zap.Float64("fuse_ms", ev.StageTimings.FuseMs),
		zap.Float64("rerank_ms", ev.StageTimings.RerankMs),
		zap.Float64("total_ms", ev.StageTimings.TotalMs),
		zap.Bool("cache_hit", ev.CacheHit),
		zap.Bool("degraded", ev.Degraded),
		zap.Float64("top_fused_score", ev.TopFusedScore),
		zap.Strings("warnings", ev.Warnings),
	}
	if err != nil {
		s.log(ctx).Warn("search_failed", append(fields, zap.Error(err))...)
	} else {
		s.log(ctx).Info("search_completed", fields...)
	}

	if s.events != nil {
		ev.Warnings = append([]string(nil), ev.Warnings...)
		s.events.SearchCompleted(ctx, ev)
	}
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

func newResponse(detail string) result.Response {
	return result.Response{
		Candidates: []result.Candidate{},
		Warnings:   []string{},
		Stages:     skippedStages(detail),
	}
}

func skippedStages(detail string) []result.Stage {
	stages := make([]result.Stage, len(pipelineStages))
	for i, name := range pipelineStages {
		stages[i] = result.Stage{Name: name, Status: result.StatusSkipped, Detail: detail}
	}
	return stages
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
