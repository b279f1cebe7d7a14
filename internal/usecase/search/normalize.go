package search

import (
	"fmt"
	"math"
	"strings"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// NormalizationMethod selects how raw channel scores are made comparable.
type NormalizationMethod int

// Normalization methods.
const (
	MinMax NormalizationMethod = iota
	ZScore
	RRF
)

func (m NormalizationMethod) String() string {
	switch m {
	case MinMax:
		return "min_max"
	case ZScore:
		return "z_score"
	case RRF:
		return "rrf"
	default:
		return fmt.Sprintf("normalization(%d)", int(m))
	}
}

// IsValid reports whether m is a known method.
func (m NormalizationMethod) IsValid() bool {
	return m == MinMax || m == ZScore || m == RRF
}

// ParseNormalization maps a config value to a method. Empty means MinMax.
func ParseNormalization(s string) (NormalizationMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "min_max", "minmax":
		return MinMax, nil
	case "z_score", "zscore":
		return ZScore, nil
	case "rrf", "reciprocal_rank":
		return RRF, nil
	default:
		return 0, fmt.Errorf("unknown normalization method %q", s)
	}
}

// Normalize applies m to scores. For RRF the input must already be sorted
// descending by raw score.
func (m NormalizationMethod) Normalize(scores []float64) []float64 {
	switch m {
	case ZScore:
		return ZScoreNormalize(scores)
	case RRF:
		return ReciprocalRank(scores, rrfK)
	default:
		return MinMaxNormalize(scores)
	}
}

// MinMaxNormalize maps scores onto [0,1]. Equal scores all map to 1.
func MinMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	span := hi - lo
	for i, s := range scores {
		if span == 0 {
			out[i] = 1
			continue
		}
		out[i] = (s - lo) / span
	}
	return out
}

// ZScoreNormalize returns (x - mean) / stddev, or all zeros when stddev is 0.
func ZScoreNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(scores)))
	if std == 0 {
		return out
	}
	for i, s := range scores {
		out[i] = (s - mean) / std
	}
	return out
}

// ReciprocalRank scores position i as 1/(i+1+k). Only the order of ranked matters.
func ReciprocalRank(ranked []float64, k int) []float64 {
	out := make([]float64, len(ranked))
	for i := range ranked {
		out[i] = 1.0 / float64(i+1+k)
	}
	return out
}
