package result

import "time"

// Event is the per-request observability record emitted after every search.
type Event struct {
	QueryHash             string       `json:"query_hash"`
	Mode                  string       `json:"mode"`
	Outcome               string       `json:"outcome"`
	TopK                  int          `json:"top_k"`
	LexicalCandidateCount int          `json:"lexical_candidate_count"`
	VectorCandidateCount  int          `json:"vector_candidate_count"`
	Returned              int          `json:"returned"`
	StageTimings          StageTimings `json:"stage_timings"`
	CacheHit              bool         `json:"cache_hit"`
	Degraded              bool         `json:"degraded"`
	TopFusedScore         float64      `json:"top_fused_score"`
	Warnings              []string     `json:"warnings"`
	Error                 string       `json:"error,omitempty"`
	Timestamp             time.Time    `json:"timestamp"`
}
