package vectorindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/rallylog/internal/apperr"
)

type memoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
	dim     int
}

// NewMemory returns a non-persistent index.
func NewMemory(opts ...Option) *Store {
	s, _ := newStore(&memoryBackend{entries: make(map[string]Entry)}, BackendMemory, opts...)
	return s
}

func (b *memoryBackend) upsert(_ context.Context, e Entry) error {
	b.mu.Lock()
	b.entries[e.ID] = e
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) get(_ context.Context, id string) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, apperr.ErrNotFound)
	}
	e.Embedding = append([]float32(nil), e.Embedding...)
	e.Metadata = copyMetadata(e.Metadata)
	return &e, nil
}

func (b *memoryBackend) query(_ context.Context, embedding []float32, k int, filter Filter) ([]Match, error) {
	b.mu.RLock()
	entries := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	ms := rank(entries, embedding, k, filter)
	for i := range ms {
		ms[i].Metadata = copyMetadata(ms[i].Metadata)
	}
	return ms, nil
}

func (b *memoryBackend) remove(_ context.Context, id string) error {
	b.mu.Lock()
	delete(b.entries, id)
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) count(_ context.Context, filter Filter) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, e := range b.entries {
		if filter.Matches(e.Metadata) {
			n++
		}
	}
	return n, nil
}

func (b *memoryBackend) ids(context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.entries))
	for id := range b.entries {
		out = append(out, id)
	}
	return out, nil
}

func (b *memoryBackend) clear(context.Context) error {
	b.mu.Lock()
	b.entries = make(map[string]Entry)
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) loadDimension() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dim, nil
}

func (b *memoryBackend) saveDimension(dim int) error {
	b.mu.Lock()
	b.dim = dim
	b.mu.Unlock()
	return nil
}

func (b *memoryBackend) close() error { return nil }
