package result

// Warnings attached to a response.
const (
	WarnLexicalUnavailable  = "lexical_unavailable"
	WarnVectorUnavailable   = "vector_unavailable"
	WarnLexicalTimeout      = "lexical_timeout"
	WarnVectorTimeout       = "vector_timeout"
	WarnRerankSkipped       = "rerank_skipped"
	WarnCacheUnavailable    = "cache_unavailable"
	WarnTaxonomyUnavailable = "taxonomy_unavailable"
	WarnLexicalFallback     = "lexical_query_fallback"
)

// Stage names reported in Response.Stages.
const (
	StageCacheCheck = "cache_check"
	StageLexical    = "lexical"
	StageVector     = "vector"
	StageFuse       = "fuse"
	StageRerank     = "rerank"
	StageCacheStore = "cache_store"
)

// StageStatus is the outcome of a single pipeline stage.
type StageStatus string

// Stage outcomes.
const (
	StatusOK       StageStatus = "ok"
	StatusSkipped  StageStatus = "skipped"
	StatusFailed   StageStatus = "failed"
	StatusDegraded StageStatus = "degraded"
)

// Stage records what happened to one pipeline stage.
type Stage struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`
	Detail string      `json:"detail,omitempty"`
}

// StageTimings are wall-clock durations in milliseconds.
type StageTimings struct {
	LexicalMs float64 `json:"lexical_ms"`
	VectorMs  float64 `json:"vector_ms"`
	EmbedMs   float64 `json:"embed_ms"`
	FuseMs    float64 `json:"fuse_ms"`
	RerankMs  float64 `json:"rerank_ms"`
	TotalMs   float64 `json:"total_ms"`
}

// Response is the final output of a search, ordered by final position.
type Response struct {
	Candidates            []Candidate  `json:"candidates"`
	LexicalCandidateCount int          `json:"lexical_candidate_count"`
	VectorCandidateCount  int          `json:"vector_candidate_count"`
	StageTimings          StageTimings `json:"stage_timings"`
	CacheHit              bool         `json:"cache_hit"`
	Degraded              bool         `json:"degraded"`
	Warnings              []string     `json:"warnings"`
	Stages                []Stage      `json:"stages"`
}

// AddWarning appends w once.
func (r *Response) AddWarning(w string) {
	for _, existing := range r.Warnings {
		if existing == w {
			return
		}
	}
	r.Warnings = append(r.Warnings, w)
}

// HasWarning reports whether w was recorded.
func (r *Response) HasWarning(w string) bool {
	for _, existing := range r.Warnings {
		if existing == w {
			return true
		}
	}
	return false
}

// SetStage records or overwrites the status of a stage.
func (r *Response) SetStage(name string, status StageStatus, detail string) {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			r.Stages[i].Status = status
			r.Stages[i].Detail = detail
			return
		}
	}
	r.Stages = append(r.Stages, Stage{Name: name, Status: status, Detail: detail})
}

// StageStatusOf returns the recorded status of a stage, or "" if absent.
func (r *Response) StageStatusOf(name string) StageStatus {
	for _, s := range r.Stages {
		if s.Name == name {
			return s.Status
		}
	}
	return ""
}

// TopFusedScore returns the fused score of the first candidate, or 0.
func (r *Response) TopFusedScore() float64 {
	if len(r.Candidates) == 0 {
		return 0
	}
	return r.Candidates[0].FusedScore
}

// Clone returns a deep copy that shares no mutable state with r.
func (r *Response) Clone() Response {
	out := *r
	out.Candidates = make([]Candidate, len(r.Candidates))
	for i := range r.Candidates {
		out.Candidates[i] = r.Candidates[i].Clone()
	}
	out.Warnings = append(make([]string, 0, len(r.Warnings)), r.Warnings...)
	out.Stages = append(make([]Stage, 0, len(r.Stages)), r.Stages...)
	return out
}
