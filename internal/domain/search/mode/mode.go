package mode

import "fmt"

// Mode selects which retrieval channels a search uses.
type Mode string

// Search mode constants.
const (
	// Hybrid runs lexical and vector retrieval and fuses the results.
	Hybrid      Mode = "hybrid"
	LexicalOnly Mode = "lexical_only"
	VectorOnly  Mode = "vector_only"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == LexicalOnly || m == VectorOnly
}

// UsesLexical reports whether the lexical channel runs in this mode.
func (m Mode) UsesLexical() bool { return m == Hybrid || m == LexicalOnly }

// UsesVector reports whether the vector channel runs in this mode.
func (m Mode) UsesVector() bool { return m == Hybrid || m == VectorOnly }

// Parse converts a wire value into a Mode. Empty means Hybrid.
func Parse(s string) (Mode, error) {
	if s == "" {
		return Hybrid, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		return "", fmt.Errorf("invalid search mode: %q", s)
	}
	return m, nil
}
