package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/retrievex/internal/db"
)

// mockStore implements both search interfaces and the index store for tests.
type mockStore struct {
	searchKNNFn  func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchBM25Fn func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	indexExists  bool
	indexErr     error
	createErr    error
	createdIndex *db.IndexDefinition
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchBM25Fn != nil {
		return m.searchBM25Fn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.indexExists, m.indexErr
}

func (m *mockStore) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	m.createdIndex = def
	return m.createErr
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, ms, Config{
		IndexName:      "retrievex:chunks:idx",
		KeyPrefix:      "retrievex:chunk:",
		MetadataFields: []string{"source"},
	})
	return repo, ms
}
