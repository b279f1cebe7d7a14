package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vector backends.
const (
	VectorBackendRedis  = "redis"
	VectorBackendQdrant = "qdrant"
)

// Config holds the retrievex service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Vector    VectorConfig    `yaml:"vector"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EventsConfig holds the search event stream settings. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds the Redis connection used by the lexical index,
// the embedding cache and the taxonomy list.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	BlockingPoolSize int      `yaml:"blocking_pool_size"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// VectorConfig selects the vector backend. "redis" reuses the database connection.
type VectorConfig struct {
	Backend          string `yaml:"backend"` // redis (default), qdrant
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection"`
	EnsureCollection bool   `yaml:"ensure_collection"`
}

// IndexConfig holds the chunk index settings.
type IndexConfig struct {
	Name            string   `yaml:"name"`
	KeyPrefix       string   `yaml:"key_prefix"`
	Ensure          bool     `yaml:"ensure"`
	HNSWM           int      `yaml:"hnsw_m"`
	HNSWEFConstruct int      `yaml:"hnsw_ef_construction"`
	SnippetRunes    int      `yaml:"snippet_runes"`
	MetadataFields  []string `yaml:"metadata_fields"`
}

// StorageConfig holds the key namespace for auxiliary keys.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the query embedding provider settings.
type EmbeddingConfig struct {
	Provider         string         `yaml:"provider"`
	APIKey           string         `yaml:"api_key"`
	BaseURL          string         `yaml:"base_url"`
	Model            string         `yaml:"model"`
	Dimensions       int            `yaml:"dimensions"`
	QueryInstruction string         `yaml:"query_instruction"`
	HTTPTimeoutMs    int            `yaml:"http_timeout_ms"`
	SlowMs           int            `yaml:"slow_ms"`
	// RateLimitQPS caps provider calls per second; 0 disables the limit.
	RateLimitQPS   float64        `yaml:"rate_limit_qps"`
	RateLimitBurst int            `yaml:"rate_limit_burst"`
	Cache          EmbCacheConfig `yaml:"cache"`
}

// EmbCacheConfig holds the Redis embedding cache settings.
type EmbCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"`
}

// SearchConfig holds the hybrid pipeline settings.
type SearchConfig struct {
	RequestTimeoutMs    int            `yaml:"request_timeout_ms"`
	ChannelTimeoutMs    int            `yaml:"channel_timeout_ms"`
	CandidateMultiplier int            `yaml:"candidate_multiplier"`
	MaxCandidates       int            `yaml:"max_candidates"`
	LexicalPoolSize     int            `yaml:"lexical_pool_size"`
	VectorPoolSize      int            `yaml:"vector_pool_size"`
	PoolWaitMs          int            `yaml:"pool_wait_ms"`
	Rerank              RerankConfig   `yaml:"rerank"`
	Analyzer            AnalyzerConfig `yaml:"analyzer"`
}

// RerankConfig holds the reranking stage settings.
type RerankConfig struct {
	Enabled *bool    `yaml:"enabled"`
	TopM    int      `yaml:"top_m"`
	Kind    string   `yaml:"kind"`   // term_overlap (default), none
	Weight  *float64 `yaml:"weight"` // share of the gap to the fused leader, default 0.5
}

// AnalyzerConfig holds query classification thresholds and fusion weights.
type AnalyzerConfig struct {
	ShortQueryMaxTokens     int     `yaml:"short_query_max_tokens"`
	LongQueryMinTokens      int     `yaml:"long_query_min_tokens"`
	DefaultLexicalWeight    float64 `yaml:"default_lexical_weight"`
	ShortLexicalWeight      float64 `yaml:"short_lexical_weight"`
	LongLexicalWeight       float64 `yaml:"long_lexical_weight"`
	ExactMatchLexicalWeight float64 `yaml:"exact_match_lexical_weight"`
	Normalization           string  `yaml:"normalization"` // min_max (default), z_score, rrf
}

// CacheConfig holds the in-process result cache settings.
type CacheConfig struct {
	Capacity         int `yaml:"capacity"`
	TTLSec           int `yaml:"ttl_sec"`
	SweepIntervalSec int `yaml:"sweep_interval_sec"`
}

// TaxonomyConfig holds taxonomy filter validation settings.
type TaxonomyConfig struct {
	Version    string `yaml:"version"`
	Validate   bool   `yaml:"validate"`
	MemoTTLSec int    `yaml:"memo_ttl_sec"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with ${VAR} substitution, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo,cyclop // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Vector.Backend == "" {
		c.Vector.Backend = VectorBackendRedis
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "retrievex:"
	}
	if c.Index.Name == "" {
		c.Index.Name = "retrievex_chunks"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = c.Storage.KeyPrefix + "chunk:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.RateLimitQPS > 0 && c.Embedding.RateLimitBurst <= 0 {
		c.Embedding.RateLimitBurst = max(1, int(c.Embedding.RateLimitQPS))
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "retrievex.search.completed"
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 86400
	}
	if c.Search.RequestTimeoutMs <= 0 {
		c.Search.RequestTimeoutMs = 1000
	}
	if c.Search.ChannelTimeoutMs <= 0 {
		c.Search.ChannelTimeoutMs = 700
	}
	if c.Search.CandidateMultiplier <= 0 {
		c.Search.CandidateMultiplier = 4
	}
	if c.Search.MaxCandidates <= 0 {
		c.Search.MaxCandidates = 200
	}
	if c.Search.PoolWaitMs <= 0 {
		c.Search.PoolWaitMs = 50
	}
	if c.Search.Rerank.Enabled == nil {
		enabled := true
		c.Search.Rerank.Enabled = &enabled
	}
	if c.Search.Rerank.TopM <= 0 {
		c.Search.Rerank.TopM = 20
	}
	if c.Search.Rerank.Kind == "" {
		c.Search.Rerank.Kind = "term_overlap"
	}
	if c.Search.Rerank.Weight == nil {
		weight := 0.5
		c.Search.Rerank.Weight = &weight
	}
	c.Search.Analyzer.applyDefaults()
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 10000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Taxonomy.Version == "" {
		c.Taxonomy.Version = "v1"
	}
	if c.Taxonomy.MemoTTLSec <= 0 {
		c.Taxonomy.MemoTTLSec = 60
	}
}

func (a *AnalyzerConfig) applyDefaults() {
	if a.ShortQueryMaxTokens <= 0 {
		a.ShortQueryMaxTokens = 2
	}
	if a.LongQueryMinTokens <= 0 {
		a.LongQueryMinTokens = 7
	}
	if a.DefaultLexicalWeight == 0 {
		a.DefaultLexicalWeight = 0.6
	}
	if a.ShortLexicalWeight == 0 {
		a.ShortLexicalWeight = 0.7
	}
	if a.LongLexicalWeight == 0 {
		a.LongLexicalWeight = 0.35
	}
	if a.ExactMatchLexicalWeight == 0 {
		a.ExactMatchLexicalWeight = 0.8
	}
	if a.Normalization == "" {
		a.Normalization = "min_max"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Vector.Backend {
	case VectorBackendRedis:
	case VectorBackendQdrant:
		if c.Vector.QdrantAddr == "" || c.Vector.QdrantCollection == "" {
			return fmt.Errorf("vector.qdrant_addr and vector.qdrant_collection are required for the qdrant backend")
		}
	default:
		return fmt.Errorf("vector.backend must be %q or %q, got %q",
			VectorBackendRedis, VectorBackendQdrant, c.Vector.Backend)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Embedding.RateLimitQPS < 0 {
		return fmt.Errorf("embedding.rate_limit_qps must be >= 0, got %g", c.Embedding.RateLimitQPS)
	}
	if c.Index.Ensure && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required when index.ensure is set")
	}
	if c.Search.ChannelTimeoutMs >= c.Search.RequestTimeoutMs {
		return fmt.Errorf("search.channel_timeout_ms (%d) must be below search.request_timeout_ms (%d)",
			c.Search.ChannelTimeoutMs, c.Search.RequestTimeoutMs)
	}
	if w := c.Search.Rerank.Weight; w != nil && !(*w >= 0 && *w <= 1) {
		return fmt.Errorf("search.rerank.weight must be in [0,1], got %g", *w)
	}
	switch c.Search.Rerank.Kind {
	case "term_overlap", "none":
	default:
		return fmt.Errorf("search.rerank.kind must be \"term_overlap\" or \"none\", got %q", c.Search.Rerank.Kind)
	}
	return nil
}

// RequestTimeout is the overall search deadline.
func (s SearchConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// ChannelTimeout is the per-channel sub-deadline.
func (s SearchConfig) ChannelTimeout() time.Duration {
	return time.Duration(s.ChannelTimeoutMs) * time.Millisecond
}

// PoolWait is how long a channel waits for a storage slot.
func (s SearchConfig) PoolWait() time.Duration {
	return time.Duration(s.PoolWaitMs) * time.Millisecond
}

// RerankWeight returns the configured blend weight.
func (s SearchConfig) RerankWeight() float64 {
	if s.Rerank.Weight == nil {
		return 0.5
	}
	return *s.Rerank.Weight
}

// RerankEnabled reports whether the rerank stage runs.
func (s SearchConfig) RerankEnabled() bool {
	return s.Rerank.Enabled != nil && *s.Rerank.Enabled && s.Rerank.Kind != "none"
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
