// Package embedding decorates query embedders with logging and latency tracking.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/logger"
)

// DefaultSlowThreshold is the embed latency above which a call is logged at warn.
const DefaultSlowThreshold = 250 * time.Millisecond

// InstrumentedEmbedder wraps the query embedder on the vector channel.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai;
// this layer logs failures and slow calls with the request-scoped logger.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	provider string
	model    string
	slow     time.Duration
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. slow <= 0 uses DefaultSlowThreshold; a nil logger discards.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	slow time.Duration, logger *zap.Logger,
) *InstrumentedEmbedder {
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:    inner,
		provider: provider,
		model:    model,
		slow:     slow,
		logger:   logger,
	}
}

// Embed delegates to the inner embedder. Cancellation and deadlines pass through
// unwrapped so the caller can tell a channel timeout from a provider failure.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	log := logger.FromContextOr(ctx, p.logger).With(
		zap.String("provider", p.provider),
		zap.String("model", p.model),
	)

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Debug("Embedding request abandoned", zap.Duration("duration", duration), zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
		if errors.Is(err, domain.ErrEmbeddingThrottled) {
			log.Warn("Embedding request throttled", zap.Duration("duration", duration), zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
		}
		log.Error("Embedding request failed", zap.Duration("duration", duration), zap.Error(err))
		if !errors.Is(err, domain.ErrEmbeddingProviderError) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	if len(result.Embedding) == 0 {
		log.Error("Embedding provider returned an empty vector")
		return domain.EmbeddingResult{}, fmt.Errorf("embed: empty vector: %w", domain.ErrEmbeddingProviderError)
	}

	fields := []zap.Field{
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	}
	if duration >= p.slow {
		log.Warn("Slow embedding request", fields...)
	} else {
		log.Debug("Embedding request completed", fields...)
	}

	domain.UsageFromContext(ctx).AddTokens(result.TotalTokens)
	return result, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
