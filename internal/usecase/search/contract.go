package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/retrievex/internal/domain"
	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
	"github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

// LexicalRepository runs full-text queries over sanitized terms.
type LexicalRepository interface {
	SearchLexical(
		ctx context.Context, terms []string, filter taxonomy.Filter, k int,
	) ([]result.Candidate, error)
}

// VectorRepository runs KNN queries with a query embedding.
type VectorRepository interface {
	SearchVector(
		ctx context.Context, vector []float32, filter taxonomy.Filter, k int,
	) ([]result.Candidate, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ResultCache stores final responses.
type ResultCache interface {
	Get(ctx context.Context, key string) (result.Response, bool, error)
	Put(ctx context.Context, key string, resp result.Response, ttl time.Duration) error
}

// TaxonomyReader lists the valid taxonomy paths of a version.
type TaxonomyReader interface {
	GetFilterPaths(ctx context.Context, version string) ([]taxonomy.Path, error)
}

// Recorder receives per-request search measurements.
type Recorder interface {
	ObserveSearch(mode, outcome string, timings result.StageTimings)
	ChannelFailure(channel, reason string)
}

// EventSink receives the observability event of every finished search.
// Implementations must not block.
type EventSink interface {
	SearchCompleted(ctx context.Context, ev result.Event)
}
