// Package testutil provides shared test helpers for setting up vaults,
// journals and vector indexes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/rallylog/internal/index"
	"github.com/starford/rallylog/internal/journal"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/storage"
	"github.com/starford/rallylog/internal/vectorindex"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// Journal bundles a store with the cache and lexical index wired to it.
type Journal struct {
	Dir   string
	Store *journal.Store
	Cache *index.Cache
	Index *index.Index
}

// TestJournal creates a journal in a temporary vault whose clock is fixed at
// now. The cache is registered for write invalidation.
func TestJournal(t *testing.T, now time.Time) *Journal {
	t.Helper()
	dir, fs := TestVault(t)
	clock := func() time.Time { return now }
	logger := QuietLogger()

	store := journal.New(fs, journal.WithClock(clock), journal.WithLogger(logger))
	cache := index.NewCache(store, index.WithCacheClock(clock), index.WithCacheLogger(logger))
	store.Register(cache)
	return &Journal{Dir: dir, Store: store, Cache: cache, Index: index.New(cache)}
}

// Seed writes recs and returns them as stored. A record without CreatedAt
// is stamped at noon of its Date so ids stay distinct and predictable.
func (j *Journal) Seed(t *testing.T, recs ...models.Record) []models.Record {
	t.Helper()
	out := make([]models.Record, 0, len(recs))
	for _, r := range recs {
		if r.CreatedAt.IsZero() && r.HasDate() {
			r.CreatedAt = time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), 12, 0, 0, 0, time.Local)
		}
		saved, err := j.Store.Write(context.Background(), r)
		if err != nil {
			t.Fatalf("seed %q: %v", r.Body, err)
		}
		out = append(out, *saved)
	}
	return out
}

// TestVectors opens a SQLite vector index in a temporary directory.
func TestVectors(t *testing.T) *vectorindex.Store {
	t.Helper()
	idx, err := vectorindex.OpenSQLite(filepath.Join(t.TempDir(), "vectors.db"),
		vectorindex.WithLogger(QuietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

// Date returns midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
