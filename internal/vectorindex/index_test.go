package vectorindex

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/rallylog/internal/apperr"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type backendCase struct {
	name string
	open func(t *testing.T, dir string) *Store
}

func backends() []backendCase {
	return []backendCase{
		{BackendMemory, func(t *testing.T, _ string) *Store {
			return NewMemory(WithLogger(quietLogger()))
		}},
		{BackendSQLite, func(t *testing.T, dir string) *Store {
			s, err := OpenSQLite(filepath.Join(dir, "vectors.db"), WithLogger(quietLogger()))
			require.NoError(t, err)
			return s
		}},
		{BackendChromem, func(t *testing.T, dir string) *Store {
			s, err := OpenChromem(filepath.Join(dir, "chromem"), "", WithLogger(quietLogger()))
			require.NoError(t, err)
			return s
		}},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store)) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t, t.TempDir())
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func md(scene string) map[string]string {
	return map[string]string{"scene": scene, "date": "2025-01-10"}
}

func TestAddGetRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0, 0}, md("practice"), "serve practice"))

		e, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "r1", e.ID)
		assert.Equal(t, "serve practice", e.Document)
		assert.Equal(t, "practice", e.Metadata["scene"])
		assert.InDeltaSlice(t, []float32{1, 0, 0}, e.Embedding, 1e-6)
		assert.Equal(t, 3, s.Dimension())

		_, err = s.Get(ctx, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestAddUpserts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0}, md("practice"), "old"))
		require.NoError(t, s.Add(ctx, "r1", []float32{0, 1}, md("match"), "new"))

		n, err := s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		e, err := s.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "new", e.Document)
		assert.Equal(t, "match", e.Metadata["scene"])
	})
}

func TestAddRejectsEmptyInput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		assert.ErrorIs(t, s.Add(ctx, "", []float32{1}, nil, "doc"), apperr.ErrInvalidInput)
		assert.ErrorIs(t, s.Add(ctx, "id", nil, nil, "doc"), apperr.ErrInvalidInput)
		assert.ErrorIs(t, s.Add(ctx, "id", []float32{1}, nil, ""), apperr.ErrInvalidInput)
		assert.Equal(t, 0, s.Dimension())
	})
}

func TestQueryOrdersByDistance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "far", []float32{0, 1}, md("practice"), "far"))
		require.NoError(t, s.Add(ctx, "near", []float32{1, 0}, md("practice"), "near"))
		require.NoError(t, s.Add(ctx, "mid", []float32{0.7071068, 0.7071068}, md("practice"), "mid"))

		ms, err := s.Query(ctx, []float32{1, 0}, 10, nil)
		require.NoError(t, err)
		require.Len(t, ms, 3)
		assert.Equal(t, []string{"near", "mid", "far"}, matchIDs(ms))
		assert.InDelta(t, 0.0, ms[0].Distance, 1e-5)
		assert.InDelta(t, 1.0, ms[2].Distance, 1e-5)

		ms, err = s.Query(ctx, []float32{1, 0}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"near"}, matchIDs(ms))
	})
}

func TestQueryTiesBreakByID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Add(ctx, id, []float32{0, 1}, md("practice"), id))
		}
		ms, err := s.Query(ctx, []float32{0, 1}, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, matchIDs(ms))
	})
}

// A nearer record in another scene must not displace filtered results.
func TestQueryFilterAppliesBeforeTopK(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "match-near", []float32{1, 0}, md("match"), "m"))
		require.NoError(t, s.Add(ctx, "practice-mid", []float32{0.6, 0.8}, md("practice"), "p1"))
		require.NoError(t, s.Add(ctx, "practice-far", []float32{0, 1}, md("practice"), "p2"))

		ms, err := s.Query(ctx, []float32{1, 0}, 2, Filter{"scene": "practice"})
		require.NoError(t, err)
		require.Len(t, ms, 2)
		for _, m := range ms {
			assert.Equal(t, "practice", m.Metadata["scene"])
		}
		assert.Equal(t, []string{"practice-mid", "practice-far"}, matchIDs(ms))

		n, err := s.Count(ctx, Filter{"scene": "practice"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Count(ctx, Filter{"scene": "tournament"})
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestQueryEmptyIndex(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ms, err := s.Query(context.Background(), []float32{1, 0}, 5, nil)
		require.NoError(t, err)
		assert.Empty(t, ms)
	})
}

func TestQueryRejectsBadInput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0}, nil, "doc"))

		_, err := s.Query(ctx, nil, 5, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		_, err = s.Query(ctx, []float32{1, 0}, 0, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestDimensionMismatchLatchesWrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0, 0}, nil, "doc"))

		// A mismatched query fails but does not halt writes.
		_, err := s.Query(ctx, []float32{1, 0}, 1, nil)
		require.ErrorIs(t, err, apperr.ErrDimensionMismatch)
		require.NoError(t, s.Add(ctx, "r2", []float32{0, 1, 0}, nil, "doc"))

		err = s.Add(ctx, "r3", []float32{1, 0}, nil, "doc")
		require.ErrorIs(t, err, apperr.ErrDimensionMismatch)

		// Even a correctly sized write is refused now.
		err = s.Add(ctx, "r4", []float32{0, 0, 1}, nil, "doc")
		require.ErrorIs(t, err, apperr.ErrDimensionMismatch)

		// Reads keep working.
		ms, err := s.Query(ctx, []float32{1, 0, 0}, 5, nil)
		require.NoError(t, err)
		assert.Len(t, ms, 2)

		require.NoError(t, s.ClearAll(ctx))
		assert.Equal(t, 0, s.Dimension())
		require.NoError(t, s.Add(ctx, "r5", []float32{1, 0}, nil, "doc"))
		assert.Equal(t, 2, s.Dimension())
	})
}

func TestDeleteAndClearAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0}, nil, "a"))
		require.NoError(t, s.Add(ctx, "r2", []float32{0, 1}, nil, "b"))

		require.NoError(t, s.Delete(ctx, "r1"))
		require.NoError(t, s.Delete(ctx, "r1"))
		_, err := s.Get(ctx, "r1")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		n, err := s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, s.ClearAll(ctx))
		n, err = s.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestIDs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store) {
		ctx := context.Background()
		ids, err := s.IDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.Add(ctx, "r2", []float32{0, 1}, md("match"), "b"))
		require.NoError(t, s.Add(ctx, "r1", []float32{1, 0}, md("practice"), "a"))
		require.NoError(t, s.Add(ctx, "r3", []float32{1, 1}, md("practice"), "c"))
		require.NoError(t, s.Delete(ctx, "r3"))

		ids, err = s.IDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"r1", "r2"}, ids)
	})
}

func TestPersistenceAcrossReopen(t *testing.T) {
	for _, bc := range backends() {
		if bc.name == BackendMemory {
			continue
		}
		t.Run(bc.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			s := bc.open(t, dir)
			require.NoError(t, s.Add(ctx, "r1", []float32{0.6, 0.8}, md("practice"), "kept"))
			require.NoError(t, s.Close())

			s = bc.open(t, dir)
			defer s.Close()
			assert.Equal(t, 2, s.Dimension())

			e, err := s.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "kept", e.Document)
			assert.InDeltaSlice(t, []float32{0.6, 0.8}, e.Embedding, 1e-6)

			err = s.Add(ctx, "r2", []float32{1, 0, 0}, nil, "wrong size")
			assert.ErrorIs(t, err, apperr.ErrDimensionMismatch)
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Config{Backend: "faiss"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEncodingRoundTrip(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func matchIDs(ms []Match) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}
