// Package taxonomy reads the published list of valid taxonomy paths.
package taxonomy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kailas-cloud/retrievex/internal/db"
	"github.com/kailas-cloud/retrievex/internal/domain"
	domtax "github.com/kailas-cloud/retrievex/internal/domain/taxonomy"
)

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Repo loads `<prefix>taxonomy:<version>`, a JSON array of segment arrays.
// Loaded versions are memoized for ttl.
type Repo struct {
	store  store
	prefix string
	cache  *expirable.LRU[string, []domtax.Path]
}

// New creates a taxonomy repository. ttl <= 0 disables memoization.
func New(s store, keyPrefix string, ttl time.Duration) *Repo {
	r := &Repo{store: s, prefix: keyPrefix}
	if ttl > 0 {
		r.cache = expirable.NewLRU[string, []domtax.Path](8, nil, ttl)
	}
	return r
}

// GetFilterPaths returns every valid path of the given taxonomy version.
func (r *Repo) GetFilterPaths(ctx context.Context, version string) ([]domtax.Path, error) {
	if r.cache != nil {
		if paths, ok := r.cache.Get(version); ok {
			return paths, nil
		}
	}

	data, err := r.store.Get(ctx, r.prefix+"taxonomy:"+version)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("taxonomy version %q not published: %w", version, domain.ErrTaxonomyUnavailable)
		}
		return nil, fmt.Errorf("read taxonomy %q: %w: %w", version, domain.ErrTaxonomyUnavailable, err)
	}

	var raw [][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode taxonomy %q: %w: %w", version, domain.ErrTaxonomyUnavailable, err)
	}

	paths := make([]domtax.Path, 0, len(raw))
	for _, segs := range raw {
		p := domtax.Path(segs)
		if p.Validate() != nil {
			continue
		}
		paths = append(paths, p)
	}

	if r.cache != nil {
		r.cache.Add(version, paths)
	}
	return paths, nil
}
