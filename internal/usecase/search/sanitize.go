package search

import (
	"strings"
	"unicode"
)

// queryParserReserved are characters the full-text parser treats as syntax.
const queryParserReserved = `&|()"*?!@#$%{}[]~^<>=;:\'-+`

// SanitizeTerms strips parser syntax from the query and splits it into terms.
// The result may be empty; it never fails.
func SanitizeTerms(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if strings.ContainsRune(queryParserReserved, r) {
			return ' '
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, query)
	return dedupeTerms(strings.Fields(strings.ToLower(cleaned)))
}

// StrictTerms keeps only letters and digits. It is the retry rendition after the
// parser rejects the sanitized terms.
func StrictTerms(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, query)
	return dedupeTerms(strings.Fields(strings.ToLower(cleaned)))
}

func dedupeTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
