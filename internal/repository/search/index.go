package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/retrievex/internal/db"
)

// HNSWConfig tunes the vector index graph.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

type indexStore interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
}

// ChunkIndex returns the FT schema for chunk hashes under keyPrefix.
// __taxonomy holds every encoded prefix of the chunk path joined by "|".
func ChunkIndex(name, keyPrefix string, dims int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(name).
		Prefix(keyPrefix).
		Tag(FieldDocID, "", true).
		Tag(FieldTaxonomy, "|", true).
		Text(FieldContent).
		VectorHNSW(FieldVector, "vector", dims, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("chunk index: %w", err)
	}
	return def, nil
}

// EnsureIndex creates the chunk index when it does not exist yet.
func EnsureIndex(ctx context.Context, s indexStore, def *db.IndexDefinition) (created bool, err error) {
	exists, err := s.IndexExists(ctx, def.Name)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", def.Name, err)
	}
	if exists {
		return false, nil
	}
	if err := s.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return true, nil
}
