package search

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Compiled query feature patterns.
var (
	// Quoted exact phrases: "..." or '...' where the single quotes stand at word
	// boundaries, so apostrophes in don't or o'reilly do not count.
	quotedPhrasePattern = regexp.MustCompile(`"[^"]+"|(?:^|[^\p{L}\p{N}])'[^']+'(?:$|[^\p{L}\p{N}])`)

	// Tokens with digits, error codes and identifiers: v1.2, E0042, ERR_TIMEOUT, getUser, max_tokens
	numericTokenPattern   = regexp.MustCompile(`\d`)
	errorCodePattern      = regexp.MustCompile(`(?i)^(ERR_\w+|E\d{4,5}|[A-Z]{2,}\d{3,})$`)
	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	snakeCasePattern      = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)
)

// AnalyzerConfig holds the token thresholds and weights used to pick fusion weights.
// Each weight is the lexical share; the vector share is 1 minus it.
type AnalyzerConfig struct {
	ShortQueryMaxTokens int
	LongQueryMinTokens  int

	DefaultLexicalWeight    float64
	ShortLexicalWeight      float64
	LongLexicalWeight       float64
	ExactMatchLexicalWeight float64

	Normalization NormalizationMethod
}

// DefaultAnalyzerConfig returns the stock thresholds and weights.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ShortQueryMaxTokens:     2,
		LongQueryMinTokens:      7,
		DefaultLexicalWeight:    0.6,
		ShortLexicalWeight:      0.7,
		LongLexicalWeight:       0.35,
		ExactMatchLexicalWeight: 0.8,
		Normalization:           MinMax,
	}
}

// Validate checks thresholds and weight ranges.
func (c AnalyzerConfig) Validate() error {
	var errs []error
	if c.ShortQueryMaxTokens < 1 {
		errs = append(errs, errors.New("short query threshold must be >= 1"))
	}
	if c.LongQueryMinTokens <= c.ShortQueryMaxTokens {
		errs = append(errs, errors.New("long query threshold must exceed short query threshold"))
	}
	for name, w := range map[string]float64{
		"default": c.DefaultLexicalWeight,
		"short":   c.ShortLexicalWeight,
		"long":    c.LongLexicalWeight,
		"exact":   c.ExactMatchLexicalWeight,
	} {
		if math.IsNaN(w) || w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("%s lexical weight %v out of [0,1]", name, w))
		}
	}
	if !c.Normalization.IsValid() {
		errs = append(errs, fmt.Errorf("invalid normalization %v", c.Normalization))
	}
	return errors.Join(errs...)
}

// QueryCharacteristics are the features extracted from the query text.
type QueryCharacteristics struct {
	TokenCount       int
	HasQuotedPhrase  bool
	HasNumericOrCode bool
}

// QueryClass names the rule that chose the weights.
type QueryClass string

// Query classes.
const (
	ClassEmpty   QueryClass = "empty"
	ClassExact   QueryClass = "exact"
	ClassShort   QueryClass = "short"
	ClassLong    QueryClass = "long"
	ClassDefault QueryClass = "default"
)

// FusionWeights are the channel weights and normalization for one query.
type FusionWeights struct {
	Lexical float64
	Vector  float64
	Method  NormalizationMethod
	Class   QueryClass
}

// Analyzer picks fusion weights from query characteristics.
type Analyzer struct {
	cfg AnalyzerConfig
}

// NewAnalyzer validates cfg and creates an analyzer.
func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer config: %w", err)
	}
	return &Analyzer{cfg: cfg}, nil
}

// Characteristics extracts features from the raw query text.
func (a *Analyzer) Characteristics(query string) QueryCharacteristics {
	tokens := strings.Fields(query)
	qc := QueryCharacteristics{
		TokenCount:      len(tokens),
		HasQuotedPhrase: quotedPhrasePattern.MatchString(query),
	}
	for _, tok := range tokens {
		tok = strings.Trim(tok, `"'.,;:!?()[]{}`)
		if isNumericOrCode(tok) {
			qc.HasNumericOrCode = true
			break
		}
	}
	return qc
}

// Analyze returns the fusion weights for query.
// Exact-match signals win over length; anything between the thresholds gets the default.
func (a *Analyzer) Analyze(query string) FusionWeights {
	qc := a.Characteristics(query)

	class := ClassDefault
	lexical := a.cfg.DefaultLexicalWeight
	switch {
	case qc.TokenCount == 0:
		class = ClassEmpty
	case qc.HasQuotedPhrase || qc.HasNumericOrCode:
		class, lexical = ClassExact, a.cfg.ExactMatchLexicalWeight
	case qc.TokenCount <= a.cfg.ShortQueryMaxTokens:
		class, lexical = ClassShort, a.cfg.ShortLexicalWeight
	case qc.TokenCount >= a.cfg.LongQueryMinTokens:
		class, lexical = ClassLong, a.cfg.LongLexicalWeight
	}

	return FusionWeights{
		Lexical: lexical,
		Vector:  1 - lexical,
		Method:  a.cfg.Normalization,
		Class:   class,
	}
}

func isNumericOrCode(tok string) bool {
	if tok == "" {
		return false
	}
	return numericTokenPattern.MatchString(tok) ||
		errorCodePattern.MatchString(tok) ||
		camelCasePattern.MatchString(tok) ||
		snakeCasePattern.MatchString(tok) ||
		screamingSnakePattern.MatchString(tok)
}
