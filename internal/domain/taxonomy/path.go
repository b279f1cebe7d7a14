// Package taxonomy models hierarchical taxonomy paths and their storage encoding.
//
// A path such as ["Technology", "AI"] is stored as the literal "Technology/AI":
// every segment is percent-escaped before joining, so separator and reserved
// characters inside a segment can never change the path structure.
package taxonomy

import (
	"fmt"
	"net/url"
	"strings"
)

// Path limits.
const (
	MaxDepth         = 16
	MaxSegmentLength = 256
	// Separator joins encoded segments in the storage literal.
	Separator = "/"
)

// Path is an ordered list of taxonomy segments, root first.
type Path []string

// NewPath validates and creates a Path.
func NewPath(segments ...string) (Path, error) {
	p := Path(segments)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks depth and segment constraints.
func (p Path) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("taxonomy path is empty")
	}
	if len(p) > MaxDepth {
		return fmt.Errorf("taxonomy path too deep (max %d)", MaxDepth)
	}
	for i, s := range p {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("taxonomy path segment %d is empty", i)
		}
		if len(s) > MaxSegmentLength {
			return fmt.Errorf("taxonomy path segment %d too long (max %d)", i, MaxSegmentLength)
		}
	}
	return nil
}

// HasPrefix reports whether p starts with prefix, segment by segment.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports segment-wise equality.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

func (p Path) String() string {
	return strings.Join(p, " > ")
}

// Literal returns the escaped storage literal of p.
func Literal(p Path) string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// Decode parses a storage literal produced by Literal.
func Decode(literal string) (Path, error) {
	if literal == "" {
		return nil, nil
	}
	parts := strings.Split(literal, Separator)
	p := make(Path, len(parts))
	for i, part := range parts {
		s, err := url.PathUnescape(part)
		if err != nil {
			return nil, fmt.Errorf("decode taxonomy segment %d: %w", i, err)
		}
		p[i] = s
	}
	return p, nil
}

// Prefixes returns the storage literals of every prefix of p, shortest first.
// Indexing all of them lets a prefix filter become an exact tag match.
func Prefixes(p Path) []string {
	out := make([]string, 0, len(p))
	for i := 1; i <= len(p); i++ {
		out = append(out, Literal(p[:i]))
	}
	return out
}

// Filter is a disjunction of path prefixes. An empty filter matches everything.
type Filter []Path

// Matches reports whether p starts with any path of the filter.
func (f Filter) Matches(p Path) bool {
	if len(f) == 0 {
		return true
	}
	for _, prefix := range f {
		if p.HasPrefix(prefix) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether the filter has no paths.
func (f Filter) IsEmpty() bool { return len(f) == 0 }

// Canonical returns a stable serialization used for cache keys.
// Distinct filters always produce distinct strings.
func (f Filter) Canonical() string {
	lits := make([]string, len(f))
	for i, p := range f {
		lits[i] = Literal(p)
	}
	// Literals never contain '\n' because PathEscape encodes control characters.
	return strings.Join(lits, "\n")
}
