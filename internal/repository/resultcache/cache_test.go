package resultcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, capacity int, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	c, err := New(Config{Capacity: capacity, DefaultTTL: time.Minute}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c, clk
}

func response(id string) result.Response {
	return result.Response{
		Candidates: []result.Candidate{{ChunkID: id, FusedScore: 0.5}},
		Warnings:   []string{},
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Capacity: 0, DefaultTTL: time.Second}); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := New(Config{Capacity: 1}); err == nil {
		t.Error("expected error for zero ttl")
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t, 4)
	ctx := context.Background()

	want := response("c1")
	if err := c.Put(ctx, "k", want, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v err %v", ok, err)
	}
	if len(got.Candidates) != 1 || got.Candidates[0].ChunkID != "c1" || got.Candidates[0].FusedScore != 0.5 {
		t.Errorf("unexpected value: %+v", got)
	}
}

func TestGet_ReturnsIndependentCopies(t *testing.T) {
	c, _ := newTestCache(t, 4)
	ctx := context.Background()

	orig := response("c1")
	_ = c.Put(ctx, "k", orig, 0)
	orig.Candidates[0].ChunkID = "mutated-after-put"

	got, _, _ := c.Get(ctx, "k")
	got.Candidates[0].ChunkID = "mutated-after-get"

	again, _, _ := c.Get(ctx, "k")
	if again.Candidates[0].ChunkID != "c1" {
		t.Errorf("cached value was mutated: %q", again.Candidates[0].ChunkID)
	}
}

func TestGet_TTLExpiry(t *testing.T) {
	c, clk := newTestCache(t, 4)
	ctx := context.Background()

	_ = c.Put(ctx, "k", response("c1"), 10*time.Second)

	clk.Advance(9 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("expected hit before ttl")
	}

	clk.Advance(time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss once ttl elapsed")
	}
	if s := c.Stats(); s.Size != 0 || s.Evictions != 1 {
		t.Errorf("expired entry must be removed, stats %+v", s)
	}
}

func TestPut_EvictsLeastRecentlyAccessed(t *testing.T) {
	var evicted []string
	c, _ := newTestCache(t, 3, WithEvictionHook(func(key string, reason EvictReason) {
		if reason != EvictCapacity {
			t.Errorf("unexpected reason %q", reason)
		}
		evicted = append(evicted, key)
	}))
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Put(ctx, k, response(k), 0)
	}
	// touch a, so b becomes least recently accessed
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatal("expected hit on a")
	}

	_ = c.Put(ctx, "d", response("d"), 0)

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("evicted = %v, want [b]", evicted)
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok, _ := c.Get(ctx, k); !ok {
			t.Errorf("expected %s to remain cached", k)
		}
	}
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("b must be evicted")
	}
}

func TestPut_UpdateDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, 2)
	ctx := context.Background()
	_ = c.Put(ctx, "a", response("a"), 0)
	_ = c.Put(ctx, "b", response("b"), 0)
	_ = c.Put(ctx, "a", response("a2"), 0)

	if s := c.Stats(); s.Size != 2 || s.Evictions != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
	got, _, _ := c.Get(ctx, "a")
	if got.Candidates[0].ChunkID != "a2" {
		t.Errorf("expected updated value, got %q", got.Candidates[0].ChunkID)
	}
}

func TestPut_DropsExpiredBeforeLRU(t *testing.T) {
	var evicted []string
	c, clk := newTestCache(t, 2, WithEvictionHook(func(key string, reason EvictReason) {
		evicted = append(evicted, fmt.Sprintf("%s:%s", key, reason))
	}))
	ctx := context.Background()

	_ = c.Put(ctx, "old", response("old"), time.Minute)
	_ = c.Put(ctx, "short", response("short"), time.Second)
	clk.Advance(2 * time.Second)

	_ = c.Put(ctx, "new", response("new"), 0)

	if len(evicted) != 1 || evicted[0] != "short:expired" {
		t.Fatalf("evicted = %v, want [short:expired]", evicted)
	}
	if _, ok, _ := c.Get(ctx, "old"); !ok {
		t.Error("live LRU entry must survive when an expired one can go instead")
	}
}

func TestStats_HitRate(t *testing.T) {
	c, _ := newTestCache(t, 2)
	ctx := context.Background()
	_ = c.Put(ctx, "a", response("a"), 0)
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "missing")

	s := c.Stats()
	if s.Hits != 3 || s.Misses != 1 || s.Size != 1 || s.Capacity != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.HitRate != 0.75 {
		t.Errorf("hit rate = %f, want 0.75", s.HitRate)
	}
}

func TestShutdown(t *testing.T) {
	c, err := New(Config{Capacity: 2, DefaultTTL: time.Minute, SweepInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	_ = c.Put(ctx, "a", response("a"), 0)

	c.Shutdown()
	c.Shutdown()

	if _, _, err := c.Get(ctx, "a"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after shutdown = %v, want ErrClosed", err)
	}
	if err := c.Put(ctx, "b", response("b"), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after shutdown = %v, want ErrClosed", err)
	}
	if s := c.Stats(); s.Size != 0 || s.Evictions != 0 {
		t.Errorf("shutdown purge must not count as eviction: %+v", s)
	}
}

func TestSweeper_RemovesExpired(t *testing.T) {
	clk := newFakeClock()
	c, err := New(Config{Capacity: 4, DefaultTTL: time.Second, SweepInterval: 2 * time.Millisecond}, WithClock(clk.Now))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Shutdown()

	_ = c.Put(context.Background(), "a", response("a"), 0)
	clk.Advance(2 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for c.Stats().Size != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove expired entry")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMetrics(t *testing.T) {
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_lookups"}, []string{"result"})
	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_evictions"}, []string{"reason"})
	entries := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_entries"})

	c, _ := newTestCache(t, 1, WithMetrics(Metrics{Lookups: lookups, Evictions: evictions, Entries: entries}))
	ctx := context.Background()
	_ = c.Put(ctx, "a", response("a"), 0)
	_ = c.Put(ctx, "b", response("b"), 0)
	_, _, _ = c.Get(ctx, "b")
	_, _, _ = c.Get(ctx, "a")

	if v := testutil.ToFloat64(lookups.WithLabelValues("hit")); v != 1 {
		t.Errorf("hits = %v", v)
	}
	if v := testutil.ToFloat64(lookups.WithLabelValues("miss")); v != 1 {
		t.Errorf("misses = %v", v)
	}
	if v := testutil.ToFloat64(evictions.WithLabelValues("capacity")); v != 1 {
		t.Errorf("capacity evictions = %v", v)
	}
	if v := testutil.ToFloat64(entries); v != 1 {
		t.Errorf("entries = %v", v)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newTestCache(t, 16)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*7+i)%32)
				_ = c.Put(ctx, key, response(key), 0)
				if got, ok, err := c.Get(ctx, key); err == nil && ok {
					if len(got.Candidates) != 1 {
						t.Errorf("partial entry observed for %s: %+v", key, got)
						return
					}
				}
			}
		}(g)
	}
	wg.Wait()

	if s := c.Stats(); s.Size > 16 {
		t.Errorf("size %d exceeds capacity", s.Size)
	}
}
