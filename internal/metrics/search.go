package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

// Search pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of hybrid search requests",
		},
		[]string{"mode", "outcome"},
	)

	SearchStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_stage_duration_seconds",
			Help:      "Search pipeline stage duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"stage"},
	)

	SearchChannelFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_channel_failures_total",
			Help:      "Retrieval channel failures by reason",
		},
		[]string{"channel", "reason"},
	)

	ResultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Result cache hits and misses",
		},
		[]string{"result"},
	)

	ResultCacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_evictions_total",
			Help:      "Result cache evictions by reason",
		},
		[]string{"reason"},
	)

	ResultCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "result_cache_entries",
			Help:      "Current number of cached search responses",
		},
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers the search and result cache collectors. Safe to call twice.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(
			SearchRequestsTotal,
			SearchStageDuration,
			SearchChannelFailuresTotal,
			ResultCacheTotal,
			ResultCacheEvictionsTotal,
			ResultCacheEntries,
		)
	})
}

// SearchRecorder feeds search outcomes into the package collectors.
type SearchRecorder struct{}

// ObserveSearch counts the request and observes the timings of stages that ran.
func (SearchRecorder) ObserveSearch(mode, outcome string, t result.StageTimings) {
	SearchRequestsTotal.WithLabelValues(mode, outcome).Inc()

	stages := []struct {
		name string
		ms   float64
	}{
		{"lexical", t.LexicalMs},
		{"vector", t.VectorMs},
		{"embed", t.EmbedMs},
		{"fuse", t.FuseMs},
		{"rerank", t.RerankMs},
		{"total", t.TotalMs},
	}
	for _, s := range stages {
		if s.ms > 0 {
			SearchStageDuration.WithLabelValues(s.name).Observe(s.ms / 1000)
		}
	}
}

// ChannelFailure counts a failed retrieval channel.
func (SearchRecorder) ChannelFailure(channel, reason string) {
	SearchChannelFailuresTotal.WithLabelValues(channel, reason).Inc()
}

// Register registers every domain collector. HTTP collectors register on import.
func Register() {
	RegisterEmbeddingMetrics()
	RegisterSearchMetrics()
}
