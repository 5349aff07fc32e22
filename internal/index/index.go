// Package index is the lexical index: filter predicates and newest-first
// ordering over the cached record set.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/models"
)

// DefaultLookback is the window searched when free text carries no date.
const DefaultLookback = 30 * 24 * time.Hour

// Searcher is the lexical query surface consumed by the façade and the API.
type Searcher interface {
	Search(ctx context.Context, f models.SearchFilters, limit int) ([]models.Record, error)
	Get(ctx context.Context, id string) (*models.Record, error)
}

// Verify *Index satisfies Searcher at compile time.
var _ Searcher = (*Index)(nil)

// Index answers lexical queries from a Cache.
type Index struct {
	cache *Cache
	now   func() time.Time
}

// New creates an Index over cache.
func New(cache *Cache) *Index {
	return &Index{cache: cache, now: cache.now}
}

// Search returns the records matching f, newest first. limit <= 0 returns
// every match. An empty store yields an empty slice.
func (x *Index) Search(ctx context.Context, f models.SearchFilters, limit int) ([]models.Record, error) {
	entry, err := x.cache.GetOrRefresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	out := make([]models.Record, 0)
	for i := range entry.Records {
		if Matches(&entry.Records[i], &f) {
			out = append(out, entry.Records[i])
		}
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the cached record with the given id.
func (x *Index) Get(ctx context.Context, id string) (*models.Record, error) {
	entry, err := x.cache.GetOrRefresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: get: %w", err)
	}
	rec, ok := entry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("index: record %s: %w", id, apperr.ErrNotFound)
	}
	return &rec, nil
}

// FindFuzzy searches the day named in dateText ("yesterday", "3日前",
// "1/15", ...). When no date can be extracted it searches the last
// DefaultLookback instead.
func (x *Index) FindFuzzy(ctx context.Context, dateText string, keywords []string, scene string, limit int) ([]models.Record, error) {
	now := x.now()
	r := models.DateRange{From: now.Add(-DefaultLookback), To: now}
	if d, ok := ExtractDate(dateText, now); ok {
		r = models.DateRange{From: d, To: d}
	}
	return x.Search(ctx, models.SearchFilters{
		Keywords:  keywords,
		Scene:     scene,
		DateRange: &r,
	}, limit)
}
