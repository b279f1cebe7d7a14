// Package resultcache is the process-wide LRU+TTL cache of final search responses.
//
// A Cache is created once at startup with New and torn down with Shutdown. All
// access is serialized by the cache itself; callers never lock it.
package resultcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("result cache closed")

// EvictReason explains why an entry left the cache.
type EvictReason string

// Eviction reasons.
const (
	EvictCapacity EvictReason = "capacity"
	EvictExpired  EvictReason = "expired"
)

// Config sizes the cache.
type Config struct {
	Capacity   int
	DefaultTTL time.Duration
	// SweepInterval runs a background expiry sweep; 0 disables it.
	SweepInterval time.Duration
}

// Stats is a point-in-time snapshot for monitoring.
type Stats struct {
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Metrics are optional prometheus collectors updated by the cache.
type Metrics struct {
	Lookups   *prometheus.CounterVec // label "result": hit|miss
	Evictions *prometheus.CounterVec // label "reason": capacity|expired
	Entries   prometheus.Gauge
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithEvictionHook is called with the lock held for every evicted key.
func WithEvictionHook(fn func(key string, reason EvictReason)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

type entry struct {
	value        result.Response
	insertedAt   time.Time
	expiresAt    time.Time
	lastAccessed time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, *entry]
	cfg     Config
	now     func() time.Time
	metrics Metrics
	onEvict func(key string, reason EvictReason)

	// reason tags the next eviction callback; "" suppresses accounting (Purge).
	reason    EvictReason
	hits      uint64
	misses    uint64
	evictions uint64
	closed    bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a cache and starts its sweeper when configured.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.DefaultTTL <= 0 {
		return nil, fmt.Errorf("cache default ttl must be positive, got %s", cfg.DefaultTTL)
	}

	c := &Cache{
		cfg:    cfg,
		now:    time.Now,
		reason: EvictCapacity,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	l, err := simplelru.NewLRU[string, *entry](cfg.Capacity, c.evicted)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l

	if cfg.SweepInterval > 0 {
		go c.sweepLoop(cfg.SweepInterval)
	} else {
		close(c.done)
	}
	return c, nil
}

// Get returns a deep copy of a live entry and refreshes its recency.
func (c *Cache) Get(_ context.Context, key string) (result.Response, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return result.Response{}, false, ErrClosed
	}

	e, ok := c.lru.Get(key)
	if ok && !c.now().Before(e.expiresAt) {
		c.removeLocked(key, EvictExpired)
		ok = false
	}
	if !ok {
		c.misses++
		c.observeLookup("miss")
		return result.Response{}, false, nil
	}

	e.lastAccessed = c.now()
	c.hits++
	c.observeLookup("hit")
	return e.value.Clone(), true, nil
}

// Put stores a deep copy of resp. ttl <= 0 uses the default TTL.
// When full, expired entries are dropped before the least recently used one.
func (c *Cache) Put(_ context.Context, key string, resp result.Response, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	now := c.now()
	if !c.lru.Contains(key) && c.lru.Len() >= c.cfg.Capacity {
		c.sweepLocked(now)
	}

	c.reason = EvictCapacity
	c.lru.Add(key, &entry{
		value:        resp.Clone(),
		insertedAt:   now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	})
	c.observeSize()
	return nil
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Capacity:  c.cfg.Capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if c.lru != nil && !c.closed {
		s.Size = c.lru.Len()
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Shutdown stops the sweeper and drops all entries. Safe to call twice.
func (c *Cache) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done

		c.mu.Lock()
		defer c.mu.Unlock()
		c.reason = ""
		c.lru.Purge()
		c.closed = true
		c.observeSize()
	})
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked(c.now())
			c.observeSize()
			c.mu.Unlock()
		}
	}
}

// sweepLocked removes every expired entry, oldest first.
func (c *Cache) sweepLocked(now time.Time) {
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && !now.Before(e.expiresAt) {
			c.removeLocked(key, EvictExpired)
		}
	}
}

func (c *Cache) removeLocked(key string, reason EvictReason) {
	c.reason = reason
	c.lru.Remove(key)
	c.reason = EvictCapacity
}

// evicted is the simplelru callback; it runs under c.mu.
func (c *Cache) evicted(key string, _ *entry) {
	if c.reason == "" {
		return
	}
	c.evictions++
	if c.metrics.Evictions != nil {
		c.metrics.Evictions.WithLabelValues(string(c.reason)).Inc()
	}
	if c.onEvict != nil {
		c.onEvict(key, c.reason)
	}
}

func (c *Cache) observeLookup(res string) {
	if c.metrics.Lookups != nil {
		c.metrics.Lookups.WithLabelValues(res).Inc()
	}
	c.observeSize()
}

func (c *Cache) observeSize() {
	if c.metrics.Entries != nil {
		c.metrics.Entries.Set(float64(c.lru.Len()))
	}
}
