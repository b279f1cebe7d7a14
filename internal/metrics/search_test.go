package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/retrievex/internal/domain/search/result"
)

func TestSearchRecorder_ObserveSearch(t *testing.T) {
	var rec SearchRecorder
	before := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("hybrid", "ok"))

	rec.ObserveSearch("hybrid", "ok", result.StageTimings{LexicalMs: 4, VectorMs: 9, FuseMs: 0.2, TotalMs: 12})

	after := testutil.ToFloat64(SearchRequestsTotal.WithLabelValues("hybrid", "ok"))
	if after-before != 1 {
		t.Errorf("expected one request recorded, got %f", after-before)
	}
	if n := testutil.CollectAndCount(SearchStageDuration); n < 4 {
		t.Errorf("expected at least 4 stage series, got %d", n)
	}
}

func TestSearchRecorder_CacheHitObservesTotal(t *testing.T) {
	var rec SearchRecorder
	rec.ObserveSearch("lexical", "cache_hit", result.StageTimings{TotalMs: 0.3})

	if n := testutil.CollectAndCount(SearchStageDuration); n == 0 {
		t.Error("total stage must be observed")
	}
}

func TestSearchRecorder_ChannelFailure(t *testing.T) {
	var rec SearchRecorder
	rec.ChannelFailure("vector", "timeout")
	rec.ChannelFailure("vector", "timeout")

	if v := testutil.ToFloat64(SearchChannelFailuresTotal.WithLabelValues("vector", "timeout")); v < 2 {
		t.Errorf("expected 2 vector timeouts, got %f", v)
	}
}

func TestRegisterSearchMetrics_Idempotent(_ *testing.T) {
	RegisterSearchMetrics()
	RegisterSearchMetrics()
}
