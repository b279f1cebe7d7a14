package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates search still answers from one channel.
	Degraded Status = "degraded"
	// Unhealthy indicates no retrieval channel can serve.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentLexicalStore = "lexical_store"
	ComponentVectorStore  = "vector_store"
	ComponentEmbedding    = "embedding"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	lexical   Pinger
	vector    Pinger
	embedding EmbeddingChecker
	timeout   time.Duration
}

// New creates a Service. vector may be the same backend as lexical; embedding can be nil.
func New(lexical, vector Pinger, embedding EmbeddingChecker) *Service {
	return &Service{lexical: lexical, vector: vector, embedding: embedding, timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-component check timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check queries all components concurrently. The lexical channel needs its
// store; the vector channel needs its store and the embedder.
func (s *Service) Check(ctx context.Context) Report {
	components := map[string]func(context.Context) error{
		ComponentLexicalStore: s.lexical.Ping,
		ComponentVectorStore:  s.vector.Ping,
	}
	if s.embedding != nil {
		components[ComponentEmbedding] = s.embedding.HealthCheck
	}

	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult, len(components))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range components {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := check(pctx); err != nil {
				res = CheckError
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks map[string]CheckResult) Status {
	lexicalUp := checks[ComponentLexicalStore] == CheckOK
	vectorUp := checks[ComponentVectorStore] == CheckOK &&
		checks[ComponentEmbedding] != CheckError

	switch {
	case lexicalUp && vectorUp:
		return Healthy
	case lexicalUp || vectorUp:
		return Degraded
	default:
		return Unhealthy
	}
}
