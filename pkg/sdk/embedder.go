package retrievex

import "context"

// Embedder converts query text to a vector.
// Without one the vector channel fails and hybrid searches degrade to lexical.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}
