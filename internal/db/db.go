package db

import (
	"context"
	"time"
)

// Store is the Redis-backed facade combining all sub-interfaces.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	KVStore
	IndexManager
	TextSearcher
	VectorSearcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// TextSearcher runs full-text BM25 queries.
type TextSearcher interface {
	SearchBM25(ctx context.Context, q *TextQuery) (*SearchResult, error)
}

// VectorSearcher runs nearest-neighbour queries. Implemented by every vector backend.
type VectorSearcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
