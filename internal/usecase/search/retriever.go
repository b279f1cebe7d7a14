package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

// Retrieval channels.
const (
	ChannelLexical = "lexical"
	ChannelVector  = "vector"
)

// Channel failure reasons used as metric labels.
const (
	ReasonTimeout       = "timeout"
	ReasonPoolExhausted = "pool_exhausted"
	ReasonEmbedding     = "embedding"
	ReasonThrottled     = "throttled"
	ReasonError         = "error"
)

// ChannelOutcome is the resolved result of one retrieval channel.
// A failed channel has a non-nil Err and no candidates.
type ChannelOutcome struct {
	Channel    string
	Candidates []result.Candidate
	Err        error
	TimedOut   bool
	// Fallback is set when both the sanitized and the strict lexical query were rejected.
	Fallback     bool
	Elapsed      time.Duration
	EmbedElapsed time.Duration
}

// Failed reports whether the channel produced no usable result.
func (o ChannelOutcome) Failed() bool { return o.Err != nil }

// FailureReason classifies Err for metrics.
func (o ChannelOutcome) FailureReason() string {
	switch {
	case o.TimedOut:
		return ReasonTimeout
	case errors.Is(o.Err, domain.ErrPoolExhausted):
		return ReasonPoolExhausted
	case errors.Is(o.Err, domain.ErrEmbeddingThrottled):
		return ReasonThrottled
	case errors.Is(o.Err, domain.ErrEmbeddingProviderError):
		return ReasonEmbedding
	default:
		return ReasonError
	}
}

// Pool bounds in-flight storage queries of one channel.
type Pool struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

// NewPool creates a pool of size slots. Acquire gives up after wait.
// A size <= 0 disables the bound.
func NewPool(size int, wait time.Duration) *Pool {
	if size <= 0 {
		return nil
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), wait: wait}
}

// Acquire takes a slot. It fails with ErrPoolExhausted when no slot frees up
// within the wait, or with the context error when ctx ends first.
func (p *Pool) Acquire(ctx context.Context) (release func(), err error) {
	if p == nil {
		return func() {}, nil
	}
	if p.sem.TryAcquire(1) {
		return func() { p.sem.Release(1) }, nil
	}
	if p.wait <= 0 {
		return nil, domain.ErrPoolExhausted
	}

	actx, cancel := context.WithTimeout(ctx, p.wait)
	defer cancel()
	if err := p.sem.Acquire(actx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrPoolExhausted
	}
	return func() { p.sem.Release(1) }, nil
}

// LexicalRetriever queries the full-text index with sanitized terms.
type LexicalRetriever struct {
	repo LexicalRepository
	pool *Pool
}

// NewLexicalRetriever creates a lexical retriever. pool may be nil.
func NewLexicalRetriever(repo LexicalRepository, pool *Pool) *LexicalRetriever {
	return &LexicalRetriever{repo: repo, pool: pool}
}

// Retrieve returns candidates sorted by lexical score. It never returns an
// error directly; failures are carried in the outcome.
func (r *LexicalRetriever) Retrieve(
	ctx context.Context, query string, filter taxonomy.Filter, k int,
) ChannelOutcome {
	start := time.Now()
	out := ChannelOutcome{Channel: ChannelLexical}

	terms := SanitizeTerms(query)
	if len(terms) == 0 {
		return finish(out, start)
	}

	release, err := r.pool.Acquire(ctx)
	if err != nil {
		return finish(channelFailure(ctx, out, err), start)
	}
	defer release()

	cands, err := r.repo.SearchLexical(ctx, terms, filter, k)
	if errors.Is(err, domain.ErrQuerySyntax) {
		if strict := StrictTerms(query); len(strict) > 0 {
			cands, err = r.repo.SearchLexical(ctx, strict, filter, k)
		}
		if errors.Is(err, domain.ErrQuerySyntax) {
			cands, err = nil, nil
			out.Fallback = true
		}
	}
	if err != nil {
		return finish(channelFailure(ctx, out, err), start)
	}

	out.Candidates = cands
	return finish(out, start)
}

// VectorRetriever embeds the query and queries the vector index.
type VectorRetriever struct {
	embed Embedder
	repo  VectorRepository
	pool  *Pool
}

// NewVectorRetriever creates a vector retriever. pool may be nil.
func NewVectorRetriever(embed Embedder, repo VectorRepository, pool *Pool) *VectorRetriever {
	return &VectorRetriever{embed: embed, repo: repo, pool: pool}
}

// Retrieve embeds query within ctx, then runs the KNN search.
func (r *VectorRetriever) Retrieve(
	ctx context.Context, query string, filter taxonomy.Filter, k int,
) ChannelOutcome {
	start := time.Now()
	out := ChannelOutcome{Channel: ChannelVector}

	emb, err := r.embed.Embed(ctx, query)
	out.EmbedElapsed = time.Since(start)
	if err == nil && len(emb.Embedding) == 0 {
		err = errors.New("empty embedding")
	}
	if err != nil {
		if !isDeadline(ctx, err) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProviderError, err)
		}
		return finish(channelFailure(ctx, out, err), start)
	}

	res := r.RetrieveEmbedding(ctx, emb.Embedding, filter, k)
	res.EmbedElapsed = out.EmbedElapsed
	return finish(res, start)
}

// RetrieveEmbedding runs the KNN search with a precomputed query embedding.
func (r *VectorRetriever) RetrieveEmbedding(
	ctx context.Context, vector []float32, filter taxonomy.Filter, k int,
) ChannelOutcome {
	start := time.Now()
	out := ChannelOutcome{Channel: ChannelVector}

	release, err := r.pool.Acquire(ctx)
	if err != nil {
		return finish(channelFailure(ctx, out, err), start)
	}
	defer release()

	cands, err := r.repo.SearchVector(ctx, vector, filter, k)
	if err != nil {
		return finish(channelFailure(ctx, out, err), start)
	}
	out.Candidates = cands
	return finish(out, start)
}

func finish(out ChannelOutcome, start time.Time) ChannelOutcome {
	out.Elapsed = time.Since(start)
	return out
}

// channelFailure records err on out, marking deadline failures as timeouts.
func channelFailure(ctx context.Context, out ChannelOutcome, err error) ChannelOutcome {
	out.Candidates = nil
	if isDeadline(ctx, err) {
		out.TimedOut = true
		out.Err = fmt.Errorf("%s: %w: %w", out.Channel, domain.ErrChannelTimeout, err)
		return out
	}
	out.Err = fmt.Errorf("%s: %w", out.Channel, err)
	return out
}

func isDeadline(ctx context.Context, err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
