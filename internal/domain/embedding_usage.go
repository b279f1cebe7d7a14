package domain

import (
	"context"
	"sync/atomic"
)

type embeddingUsageKey struct{}

// EmbeddingUsage collects query embedding token usage for a single search.
// The HTTP handler seeds the context; the instrumented embedder adds tokens.
// A cache hit marks the usage as used with zero tokens. Safe for concurrent use:
// an abandoned vector channel may still report after the response is written.
type EmbeddingUsage struct {
	total atomic.Int64
	used  atomic.Bool
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// AddTokens records consumed tokens. Nil-safe.
func (u *EmbeddingUsage) AddTokens(n int) {
	if u != nil {
		u.total.Add(int64(n))
		u.used.Store(true)
	}
}

// TotalTokens returns the tokens recorded so far.
func (u *EmbeddingUsage) TotalTokens() int {
	if u == nil {
		return 0
	}
	return int(u.total.Load())
}

// Used reports whether the embedder was called, including cache hits.
func (u *EmbeddingUsage) Used() bool {
	return u != nil && u.used.Load()
}
