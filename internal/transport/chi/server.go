// Package chi binds the hybrid search engine to HTTP.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/mode"
	"github.com/kailas-cloud/retrievex/internal/domain/search/request"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
	logpkg "github.com/kailas-cloud/retrievex/internal/logger"
	"github.com/kailas-cloud/retrievex/internal/metrics"
	"github.com/kailas-cloud/retrievex/internal/repository/resultcache"
	healthuc "github.com/kailas-cloud/retrievex/internal/usecase/health"
)

// maxBodyBytes bounds a search request body.
const maxBodyBytes = 1 << 20

// headerEmbeddingTokens reports query embedding tokens spent on a search.
const headerEmbeddingTokens = "X-Embedding-Tokens"

// Searcher runs a hybrid search.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (result.Response, error)
}

// CacheStatser exposes result cache counters.
type CacheStatser interface {
	Stats() resultcache.Stats
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the search API.
type Server struct {
	search Searcher
	cache  CacheStatser
	health HealthChecker
	logger *zap.Logger
}

// NewServer creates an HTTP API server. cache may be nil.
func NewServer(search Searcher, cache CacheStatser, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{search: search, cache: cache, health: health, logger: logger}
}

// Routes mounts the API with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(RequestContext(s.logger))
	r.Use(metrics.Middleware())

	r.Post("/v1/search", s.Search)
	r.Get("/v1/cache/stats", s.CacheStats)
	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return otelhttp.NewHandler(r, "retrievex")
}

// searchRequest is the POST /v1/search body.
type searchRequest struct {
	QueryText          string     `json:"query_text"`
	TopK               *int       `json:"top_k"`
	TaxonomyPathFilter [][]string `json:"taxonomy_path_filter"`
	MinScore           float64    `json:"min_score"`
	Mode               string     `json:"mode"`
}

// errorResponse is the wire error body.
type errorResponse struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidRequest), "invalid request body: "+err.Error())
		return
	}

	req, err := searchRequestFromBody(&body)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(domain.KindInvalidRequest), err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, &req)
	if err != nil {
		s.handleSearchError(ctx, w, err)
		return
	}
	if usage.Used() {
		w.Header().Set(headerEmbeddingTokens, strconv.Itoa(usage.TotalTokens()))
	}

	if resp.Candidates == nil {
		resp.Candidates = []result.Candidate{}
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /v1/cache/stats.
func (s *Server) CacheStats(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeError(w, http.StatusNotFound, "not_found", "result cache disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func searchRequestFromBody(body *searchRequest) (request.Request, error) {
	m, err := mode.Parse(body.Mode)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}

	topK := request.DefaultTopK
	if body.TopK != nil {
		topK = *body.TopK
	}

	var filter taxonomy.Filter
	for _, segs := range body.TaxonomyPathFilter {
		filter = append(filter, taxonomy.Path(segs))
	}

	req, err := request.New(body.QueryText, m, filter, topK, body.MinScore)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	return req, nil
}

func (s *Server) handleSearchError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logpkg.FromContextOr(ctx, s.logger)
	kind := domain.KindOf(err)

	switch kind {
	case domain.KindInvalidRequest:
		writeError(w, http.StatusBadRequest, string(kind), err.Error())
	case domain.KindChannelsUnavailable:
		log.Warn("search unavailable", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, string(kind), domain.ErrChannelsUnavailable.Error())
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, string(kind), "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{ErrorKind: kind, Message: message})
}
