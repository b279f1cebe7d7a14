package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/retrievex/internal/domain"
)

// RateLimitedEmbedder caps provider calls per second. Sits below the cache so
// cache hits never consume a token.
type RateLimitedEmbedder struct {
	inner   domain.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows qps calls per second with the given burst (min 1).
func NewRateLimitedEmbedder(inner domain.Embedder, qps float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(qps), burst),
	}
}

// Embed waits for a token. When the wait would outlive the context deadline it
// fails at once with ErrEmbeddingThrottled.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.EmbeddingResult{}, fmt.Errorf("embed rate limit: %w", ctxErr)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingThrottled, err)
	}
	return e.inner.Embed(ctx, text) //nolint:wrapcheck // transparent decorator
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (e *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
