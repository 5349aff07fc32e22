// Package vectorindex persists record embeddings and answers nearest-neighbour
// queries over them.
//
// Three backends share one front: a single-file SQLite database, a chromem-go
// directory, and an in-memory map for tests. Store wraps the backend with
// input validation and the dimensionality guard.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/metrics"
)

// DefaultCollection is the logical collection name.
const DefaultCollection = "journal_records"

// Entry is one stored vector.
type Entry struct {
	ID        string
	Embedding []float32
	Metadata  map[string]string
	Document  string
}

// Match is one query hit. Distance is 1 - cosine similarity.
type Match struct {
	ID       string
	Document string
	Metadata map[string]string
	Distance float64
}

// Filter restricts a query to entries whose metadata holds every key with
// exactly the given value. A nil or empty Filter matches everything.
type Filter map[string]string

// Matches reports whether md satisfies f.
func (f Filter) Matches(md map[string]string) bool {
	for k, v := range f {
		got, ok := md[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Index is the vector store contract used by the rest of the engine.
type Index interface {
	Add(ctx context.Context, id string, embedding []float32, metadata map[string]string, document string) error
	Get(ctx context.Context, id string) (*Entry, error)
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, filter Filter) (int, error)
	IDs(ctx context.Context) ([]string, error)
	ClearAll(ctx context.Context) error
	Dimension() int
	Close() error
}

type backend interface {
	upsert(ctx context.Context, e Entry) error
	get(ctx context.Context, id string) (*Entry, error)
	query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Match, error)
	remove(ctx context.Context, id string) error
	count(ctx context.Context, filter Filter) (int, error)
	ids(ctx context.Context) ([]string, error)
	clear(ctx context.Context) error
	loadDimension() (int, error)
	saveDimension(dim int) error
	close() error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store implements Index over a backend.
type Store struct {
	b       backend
	name    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	dim    int
	halted error
}

var _ Index = (*Store)(nil)

func newStore(b backend, name string, opts ...Option) (*Store, error) {
	s := &Store{b: b, name: name, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	dim, err := b.loadDimension()
	if err != nil {
		b.close() //nolint:errcheck
		return nil, fmt.Errorf("vectorindex: %s: load dimension: %w", name, err)
	}
	s.dim = dim
	s.logger = s.logger.With(slog.String("component", "vectorindex"), slog.String("backend", name))
	return s, nil
}

// Backend names the storage engine.
func (s *Store) Backend() string { return s.name }

// Dimension returns the vector length fixed by the first write, or 0 while
// the index is empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Add inserts or replaces the entry for id.
func (s *Store) Add(ctx context.Context, id string, embedding []float32, metadata map[string]string, document string) (err error) {
	defer func() { s.metrics.VectorOp("add", err) }()

	switch {
	case id == "":
		return fmt.Errorf("vectorindex: add: empty id: %w", apperr.ErrInvalidInput)
	case len(embedding) == 0:
		return fmt.Errorf("vectorindex: add %s: empty embedding: %w", id, apperr.ErrInvalidInput)
	case document == "":
		return fmt.Errorf("vectorindex: add %s: empty document: %w", id, apperr.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted != nil {
		return fmt.Errorf("vectorindex: add %s: writes halted: %w", id, s.halted)
	}
	if s.dim == 0 {
		if err := s.b.saveDimension(len(embedding)); err != nil {
			return s.backendErr("save dimension", err)
		}
		s.dim = len(embedding)
	} else if len(embedding) != s.dim {
		s.halted = fmt.Errorf("got %d, index holds %d: %w", len(embedding), s.dim, apperr.ErrDimensionMismatch)
		s.logger.Error("vectorindex: dimension mismatch, halting writes until cleared",
			slog.String("id", id),
			slog.Int("got", len(embedding)),
			slog.Int("want", s.dim))
		return fmt.Errorf("vectorindex: add %s: %w", id, s.halted)
	}

	e := Entry{
		ID:        id,
		Embedding: append([]float32(nil), embedding...),
		Metadata:  copyMetadata(metadata),
		Document:  document,
	}
	if err := s.b.upsert(ctx, e); err != nil {
		return s.backendErr("add "+id, err)
	}
	return nil
}

// Get returns the stored entry for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := s.b.get(ctx, id)
	s.metrics.VectorOp("get", ignoreNotFound(err))
	if err != nil {
		return nil, s.backendErr("get "+id, err)
	}
	return e, nil
}

// Query returns up to k entries closest to embedding, nearest first, among
// those matching filter.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, filter Filter) (ms []Match, err error) {
	defer func() { s.metrics.VectorOp("query", err) }()

	if len(embedding) == 0 {
		return nil, fmt.Errorf("vectorindex: query: empty embedding: %w", apperr.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, fmt.Errorf("vectorindex: query: k must be positive: %w", apperr.ErrInvalidInput)
	}

	dim := s.Dimension()
	if dim == 0 {
		return []Match{}, nil
	}
	if len(embedding) != dim {
		return nil, fmt.Errorf("vectorindex: query: got %d, index holds %d: %w", len(embedding), dim, apperr.ErrDimensionMismatch)
	}

	ms, err = s.b.query(ctx, embedding, k, filter)
	if err != nil {
		return nil, s.backendErr("query", err)
	}
	return ms, nil
}

// Delete removes id. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	defer func() { s.metrics.VectorOp("delete", err) }()
	if id == "" {
		return fmt.Errorf("vectorindex: delete: empty id: %w", apperr.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.b.remove(ctx, id); err != nil {
		return s.backendErr("delete "+id, err)
	}
	return nil
}

// Count returns the number of entries matching filter.
func (s *Store) Count(ctx context.Context, filter Filter) (int, error) {
	n, err := s.b.count(ctx, filter)
	s.metrics.VectorOp("count", err)
	if err != nil {
		return 0, s.backendErr("count", err)
	}
	return n, nil
}

// IDs returns the id of every entry in ascending order.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	ids, err := s.b.ids(ctx)
	s.metrics.VectorOp("ids", err)
	if err != nil {
		return nil, s.backendErr("ids", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// ClearAll drops every entry and forgets the dimension, lifting a
// mismatch halt. It cannot be undone.
func (s *Store) ClearAll(ctx context.Context) (err error) {
	defer func() { s.metrics.VectorOp("clear", err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Warn("vectorindex: clearing all entries", slog.Int("dimension", s.dim))
	if err := s.b.clear(ctx); err != nil {
		return s.backendErr("clear", err)
	}
	if err := s.b.saveDimension(0); err != nil {
		return s.backendErr("reset dimension", err)
	}
	s.dim = 0
	s.halted = nil
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

func (s *Store) backendErr(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("vectorindex: %s: %w", op, err)
	}
	return fmt.Errorf("vectorindex: %s %s: %w: %w", s.name, op, apperr.ErrExternalService, err)
}

func ignoreNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func copyMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
