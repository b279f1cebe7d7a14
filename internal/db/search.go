package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	Vector    []float32
	K         int
	// PathFilter holds encoded taxonomy prefixes; a hit must carry at least one.
	PathFilter   []string
	ReturnFields []string
}

// TextQuery is the input for BM25 text search.
type TextQuery struct {
	IndexName string
	// Terms are already sanitized words; the store escapes them for its query language.
	Terms        []string
	PathFilter   []string
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is BM25 for text search and cosine similarity in [0,1] for KNN.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
