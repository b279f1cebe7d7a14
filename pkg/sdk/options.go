package retrievex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	addrs    []string
	password string

	qdrantAddr       string
	qdrantCollection string

	embedder Embedder

	indexName      string
	keyPrefix      string
	metadataFields []string
	snippetRunes   int

	requestTimeout time.Duration
	channelTimeout time.Duration
	normalization  string
	rerank         bool

	cacheCapacity int
	cacheTTL      time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		indexName:     "retrievex_chunks",
		keyPrefix:     "retrievex:chunk:",
		rerank:        true,
		normalization: "min_max",
	}
}

// WithRedis sets the Redis instance holding the chunk index.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithQdrant serves the vector channel from a Qdrant collection instead of Redis.
func WithQdrant(addr, collection string) Option {
	return optionFunc(func(c *clientConfig) {
		c.qdrantAddr = addr
		c.qdrantCollection = collection
	})
}

// WithEmbedder sets the query embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithIndex locates the chunk index. Defaults: "retrievex_chunks", "retrievex:chunk:".
func WithIndex(name, keyPrefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexName = name
		c.keyPrefix = keyPrefix
	})
}

// WithMetadataFields returns the named chunk hash fields as hit metadata.
func WithMetadataFields(fields ...string) Option {
	return optionFunc(func(c *clientConfig) {
		c.metadataFields = fields
	})
}

// WithSnippetRunes truncates hit snippets to n runes.
func WithSnippetRunes(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.snippetRunes = n
	})
}

// WithTimeouts sets the overall request deadline and the per-channel deadline.
// The channel deadline must be below the request deadline.
// Defaults: 1s and 700ms.
func WithTimeouts(request, channel time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.requestTimeout = request
		c.channelTimeout = channel
	})
}

// WithNormalization selects score normalization: "min_max", "z_score" or "rrf".
func WithNormalization(method string) Option {
	return optionFunc(func(c *clientConfig) {
		c.normalization = method
	})
}

// WithoutRerank disables the term-overlap rerank of the top fused candidates.
func WithoutRerank() Option {
	return optionFunc(func(c *clientConfig) {
		c.rerank = false
	})
}

// WithResultCache enables the in-process result cache.
// Pass capacity 0 to disable (default).
func WithResultCache(capacity int, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheCapacity = capacity
		c.cacheTTL = ttl
	})
}

// WithLogger enables structured logging for client operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers client metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
