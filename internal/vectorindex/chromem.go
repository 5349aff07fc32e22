package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"
	"gopkg.in/yaml.v3"

	"github.com/starford/rallylog/internal/apperr"
)

// chromemMeta is the YAML sidecar next to the chromem directory. chromem
// keeps no record of the vector length, so the guard's state lives here.
type chromemMeta struct {
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

type chromemBackend struct {
	db       *chromem.DB
	name     string
	metaPath string

	mu  sync.RWMutex
	col *chromem.Collection
	dim int
}

// OpenChromem opens (or creates) a chromem-go index persisted under dir.
func OpenChromem(dir, collection string, opts ...Option) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: create %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open chromem: %w", err)
	}
	col, err := db.GetOrCreateCollection(collection, nil, precomputedOnly)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: collection %s: %w", collection, err)
	}
	b := &chromemBackend{
		db:       db,
		name:     collection,
		metaPath: filepath.Clean(dir) + ".meta.yaml",
		col:      col,
	}
	return newStore(b, BackendChromem, opts...)
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectorindex: embeddings must be supplied by the caller")
}

func (b *chromemBackend) collection() *chromem.Collection {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.col
}

// upsert drops any document already stored under the id before adding.
func (b *chromemBackend) upsert(ctx context.Context, e Entry) error {
	col := b.collection()
	if _, err := col.GetByID(ctx, e.ID); err == nil {
		if err := col.Delete(ctx, nil, nil, e.ID); err != nil {
			return fmt.Errorf("replace %s: %w", e.ID, err)
		}
	}
	return col.AddDocument(ctx, chromem.Document{
		ID:        e.ID,
		Metadata:  e.Metadata,
		Embedding: e.Embedding,
		Content:   e.Document,
	})
}

func (b *chromemBackend) get(ctx context.Context, id string) (*Entry, error) {
	doc, err := b.collection().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, apperr.ErrNotFound)
	}
	return &Entry{
		ID:        doc.ID,
		Embedding: append([]float32(nil), doc.Embedding...),
		Metadata:  copyMetadata(doc.Metadata),
		Document:  doc.Content,
	}, nil
}

// query asks chromem for every filtered document and ranks them here so
// ties resolve by id like the other backends.
func (b *chromemBackend) query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Match, error) {
	col := b.collection()
	n := col.Count()
	if n == 0 {
		return []Match{}, nil
	}
	res, err := col.QueryEmbedding(ctx, embedding, n, whereClause(filter), nil)
	if err != nil {
		return nil, err
	}
	ms := make([]Match, 0, len(res))
	for _, r := range res {
		ms = append(ms, Match{
			ID:       r.ID,
			Document: r.Content,
			Metadata: copyMetadata(r.Metadata),
			Distance: 1 - float64(r.Similarity),
		})
	}
	return topK(ms, k), nil
}

func (b *chromemBackend) remove(ctx context.Context, id string) error {
	col := b.collection()
	if _, err := col.GetByID(ctx, id); err != nil {
		return nil
	}
	return col.Delete(ctx, nil, nil, id)
}

// count probes with a basis vector since chromem has no filtered count.
func (b *chromemBackend) count(ctx context.Context, filter Filter) (int, error) {
	col := b.collection()
	n := col.Count()
	if len(filter) == 0 || n == 0 {
		return n, nil
	}
	b.mu.RLock()
	dim := b.dim
	b.mu.RUnlock()
	if dim == 0 {
		return 0, nil
	}
	probe := make([]float32, dim)
	probe[0] = 1
	res, err := col.QueryEmbedding(ctx, probe, n, whereClause(filter), nil)
	if err != nil {
		return 0, err
	}
	return len(res), nil
}

// ids lists the collection through an unfiltered probe query; chromem has
// no id listing.
func (b *chromemBackend) ids(ctx context.Context) ([]string, error) {
	col := b.collection()
	n := col.Count()
	b.mu.RLock()
	dim := b.dim
	b.mu.RUnlock()
	if n == 0 || dim == 0 {
		return []string{}, nil
	}
	probe := make([]float32, dim)
	probe[0] = 1
	res, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res))
	for _, r := range res {
		out = append(out, r.ID)
	}
	return out, nil
}

func (b *chromemBackend) clear(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.db.DeleteCollection(b.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", b.name, err)
	}
	col, err := b.db.GetOrCreateCollection(b.name, nil, precomputedOnly)
	if err != nil {
		return fmt.Errorf("recreate collection %s: %w", b.name, err)
	}
	b.col = col
	return nil
}

func (b *chromemBackend) loadDimension() (int, error) {
	data, err := os.ReadFile(b.metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var meta chromemMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return 0, fmt.Errorf("decode %s: %w", b.metaPath, err)
	}
	b.mu.Lock()
	b.dim = meta.Dimension
	b.mu.Unlock()
	return meta.Dimension, nil
}

func (b *chromemBackend) saveDimension(dim int) error {
	data, err := yaml.Marshal(chromemMeta{Collection: b.name, Dimension: dim})
	if err != nil {
		return err
	}
	if err := os.WriteFile(b.metaPath, data, 0o644); err != nil {
		return err
	}
	b.mu.Lock()
	b.dim = dim
	b.mu.Unlock()
	return nil
}

// close is a no-op: chromem writes each document through on add.
func (b *chromemBackend) close() error { return nil }

func whereClause(f Filter) map[string]string {
	if len(f) == 0 {
		return nil
	}
	return map[string]string(f)
}
