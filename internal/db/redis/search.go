package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/retrievex/internal/db"
)

// Schema field names queried by the store.
const (
	ContentField  = "__content"
	TaxonomyField = "__taxonomy"
	VectorAlias   = "vector"
	scoreField    = "__vector_score"
)

// SearchKNN runs a KNN vector similarity search via FT.SEARCH.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, errors.New("vector is required")
	}
	if q.K <= 0 {
		return nil, errors.New("k must be positive")
	}

	k := strconv.Itoa(q.K)
	knnPart := "[KNN " + k + " @" + VectorAlias + " $BLOB]"
	queryStr := "*=>" + knnPart
	if pf := buildPathFilter(TaxonomyField, q.PathFilter); pf != "" {
		queryStr = "(" + pf + ")=>" + knnPart
	}

	args := []string{q.IndexName, queryStr}
	args = appendReturn(args, q.ReturnFields)
	args = append(args,
		"SORTBY", scoreField, "ASC",
		"LIMIT", "0", k,
		"PARAMS", "2", "BLOB", vectorToBytes(q.Vector),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapSearchErr(err)
	}

	return parseKNNResult(raw)
}

// SearchBM25 runs a BM25 text search via FT.SEARCH.
func (s *Store) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if q.IndexName == "" {
		return nil, errors.New("index name is required")
	}
	if len(q.Terms) == 0 {
		return nil, errors.New("query is required")
	}
	if q.TopK <= 0 {
		return nil, errors.New("topK must be positive")
	}

	queryStr := buildTextQuery(q.Terms)
	if pf := buildPathFilter(TaxonomyField, q.PathFilter); pf != "" {
		queryStr = pf + " " + queryStr
	}

	args := []string{q.IndexName, queryStr}
	args = appendReturn(args, q.ReturnFields)
	args = append(args,
		"SCORER", "BM25",
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(q.TopK),
		"DIALECT", "2",
	)

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, wrapSearchErr(err)
	}

	return parseBM25Result(raw)
}

func appendReturn(args, fields []string) []string {
	if len(fields) == 0 {
		return args
	}
	args = append(args, "RETURN", strconv.Itoa(len(fields)))
	return append(args, fields...)
}

func wrapSearchErr(err error) error {
	if isSyntaxErr(err) {
		return &db.Error{Op: db.OpSearch, Err: fmt.Errorf("%w: %v", db.ErrQuerySyntax, err)}
	}
	return &db.Error{Op: db.OpSearch, Err: err}
}

// --- Result parsing ---

func parseKNNResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/2)
	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Key: key, Fields: parseFieldPairs(fields)}
		if scoreStr, ok := entry.Fields[scoreField]; ok {
			if d, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = max(0, 1.0-d) // cosine distance → similarity, clamped to [0,1]
			}
			delete(entry.Fields, scoreField)
		}
		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseBM25Result(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return &db.SearchResult{}, nil
	}

	entries := make([]db.SearchEntry, 0, (len(raw)-1)/3)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  score,
			Fields: parseFieldPairs(fields),
		})
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query construction ---

// buildPathFilter renders a TAG disjunction `@field:{lit1 | lit2}`.
// Literals are written through tagEscaper byte by byte; they never pass through a
// format string, so braces, pipes or percent signs inside them stay literal.
func buildPathFilter(field string, literals []string) string {
	if len(literals) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('@')
	b.WriteString(field)
	b.WriteString(":{")
	for i, lit := range literals {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(tagEscaper.Replace(lit))
	}
	b.WriteByte('}')
	return b.String()
}

// buildTextQuery ORs the escaped terms inside the content field.
func buildTextQuery(terms []string) string {
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = queryEscaper.Replace(t)
	}
	return "@" + ContentField + ":(" + strings.Join(escaped, " | ") + ")"
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"/", "\\/",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"|", "\\|",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"?", "\\?",
	" ", "\\ ",
)

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`&`, `\&`,
	`?`, `\?`,
	`#`, `\#`,
	`.`, `\.`,
	`,`, `\,`,
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
