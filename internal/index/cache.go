package index

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/rallylog/internal/metrics"
	"github.com/starford/rallylog/internal/models"
)

// DefaultTTL is how long a scan result is reused without touching disk.
const DefaultTTL = 60 * time.Second

// Loader produces the full record set. journal.Store satisfies it.
type Loader interface {
	ScanAll(ctx context.Context) ([]models.Record, error)
}

// Entry is one materialized scan. It is never mutated after construction.
type Entry struct {
	Records     []models.Record
	RefreshedAt time.Time
	byID        map[string]int
}

func newEntry(recs []models.Record, at time.Time) *Entry {
	e := &Entry{
		Records:     recs,
		RefreshedAt: at,
		byID:        make(map[string]int, len(recs)),
	}
	for i, r := range recs {
		e.byID[r.ID] = i
	}
	return e
}

// Lookup returns the record with the given id.
func (e *Entry) Lookup(id string) (models.Record, bool) {
	i, ok := e.byID[id]
	if !ok {
		return models.Record{}, false
	}
	return e.Records[i], true
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the validity window of a scan.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithCacheClock overrides the time source.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// WithCacheMetrics enables hit/miss accounting.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *Cache) { c.metrics = m }
}

// Cache is the in-memory materialized view of every parsed record.
//
// Each Invalidate bumps a generation counter. Concurrent misses within one
// generation share a single scan; a scan whose generation was invalidated
// while it ran is handed to its callers but not stored, so a read issued
// after a completed write always rescans.
type Cache struct {
	loader  Loader
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group

	mu         sync.RWMutex
	entry      *Entry
	generation uint64
}

// NewCache creates a cache over loader.
func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader: loader,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate drops the cached scan.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.generation++
	c.mu.Unlock()
}

// GetOrRefresh returns the cached scan if younger than the TTL, otherwise
// performs a synchronous full scan.
func (c *Cache) GetOrRefresh(ctx context.Context) (*Entry, error) {
	c.mu.RLock()
	entry, gen := c.entry, c.generation
	c.mu.RUnlock()

	if entry != nil && c.now().Sub(entry.RefreshedAt) < c.ttl {
		c.metrics.CacheLookup(true)
		return entry, nil
	}
	c.metrics.CacheLookup(false)

	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		recs, err := c.loader.ScanAll(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		fresh := newEntry(recs, c.now())

		c.mu.Lock()
		stored := c.generation == gen
		if stored {
			c.entry = fresh
		}
		c.mu.Unlock()

		c.logger.Debug("index: cache refreshed",
			slog.Int("records", len(recs)),
			slog.Bool("stored", stored))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}
