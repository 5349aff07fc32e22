// Package indexer keeps the vector index in step with the journal: it embeds
// single records after writes and re-embeds the whole journal on demand,
// skipping records whose vector is already current.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/embedding"
	"github.com/starford/rallylog/internal/journal"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/vectorindex"
)

// Embedder is the subset of *embedding.Generator the indexer uses.
type Embedder interface {
	Embed(ctx context.Context, text string, task embedding.TaskType) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string, task embedding.TaskType) []embedding.BatchResult
}

// Source lists every record in the journal.
type Source interface {
	ScanAll(ctx context.Context) ([]models.Record, error)
}

// Parser loads a single record file by its vault path. It returns nil for a
// missing or malformed file.
type Parser interface {
	Parse(path string) *models.Record
}

// Stats summarises a Reindex run.
type Stats struct {
	Scanned  int           `json:"scanned"`
	Embedded int           `json:"embedded"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Removed  int           `json:"removed"`
	Took     time.Duration `json:"took"`
}

// Indexer embeds records into a vector index.
type Indexer struct {
	source   Source
	embedder Embedder
	vectors  vectorindex.Index
	logger   *slog.Logger
}

// New creates an Indexer. A nil logger selects slog.Default().
func New(source Source, embedder Embedder, vectors vectorindex.Index, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		source:   source,
		embedder: embedder,
		vectors:  vectors,
		logger:   logger.With(slog.String("component", "indexer")),
	}
}

// IndexRecord embeds rec in document mode and upserts it.
func (x *Indexer) IndexRecord(ctx context.Context, rec models.Record) error {
	doc := Document(rec)
	vec, err := x.embedder.Embed(ctx, doc, embedding.TaskDocument)
	if err != nil {
		return fmt.Errorf("indexer: embed %s: %w", rec.ID, err)
	}
	if err := x.vectors.Add(ctx, rec.ID, vec, Metadata(rec), doc); err != nil {
		return fmt.Errorf("indexer: store %s: %w", rec.ID, err)
	}
	return nil
}

// Reindex embeds every record whose stored checksum differs from its
// current one, and drops vectors whose record no longer exists. With force
// the index is cleared first and every record is embedded again, which is
// how a model change is picked up. Per-record failures are counted and
// logged; a dimension mismatch stops the run.
func (x *Indexer) Reindex(ctx context.Context, force bool) (Stats, error) {
	start := time.Now()
	var st Stats

	recs, err := x.source.ScanAll(ctx)
	if err != nil {
		return st, fmt.Errorf("indexer: scan: %w", err)
	}
	st.Scanned = len(recs)

	if force {
		if err := x.vectors.ClearAll(ctx); err != nil {
			return st, fmt.Errorf("indexer: clear: %w", err)
		}
	} else {
		removed, err := x.prune(ctx, recs)
		if err != nil {
			return st, err
		}
		st.Removed = removed
	}

	var (
		pending []models.Record
		docs    []string
	)
	for _, rec := range recs {
		if !force && x.current(ctx, rec) {
			st.Skipped++
			continue
		}
		pending = append(pending, rec)
		docs = append(docs, Document(rec))
	}

	results := x.embedder.EmbedMany(ctx, docs, embedding.TaskDocument)
	for i, res := range results {
		rec := pending[i]
		if res.Err != nil {
			st.Failed++
			x.logger.Warn("reindex: embed failed",
				slog.String("id", rec.ID),
				slog.String("error", res.Err.Error()))
			continue
		}
		if err := x.vectors.Add(ctx, rec.ID, res.Embedding, Metadata(rec), docs[i]); err != nil {
			st.Failed++
			if errors.Is(err, apperr.ErrDimensionMismatch) {
				st.Took = time.Since(start)
				return st, fmt.Errorf("indexer: reindex halted: %w", err)
			}
			x.logger.Warn("reindex: store failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		st.Embedded++
		x.logger.Debug("reindex: embedded", slog.String("id", rec.ID))
	}

	st.Took = time.Since(start)
	x.logger.Info("reindex: done",
		slog.Int("scanned", st.Scanned),
		slog.Int("embedded", st.Embedded),
		slog.Int("skipped", st.Skipped),
		slog.Int("failed", st.Failed),
		slog.Int("removed", st.Removed),
		slog.Duration("took", st.Took))
	return st, nil
}

// prune deletes the vectors of records that are no longer in the journal,
// such as files deleted or renamed while nothing was watching.
func (x *Indexer) prune(ctx context.Context, recs []models.Record) (int, error) {
	ids, err := x.vectors.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("indexer: list vectors: %w", err)
	}
	live := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		live[rec.ID] = struct{}{}
	}
	removed := 0
	for _, id := range ids {
		if _, ok := live[id]; ok {
			continue
		}
		if err := x.vectors.Delete(ctx, id); err != nil {
			x.logger.Warn("reindex: delete stale vector failed",
				slog.String("id", id),
				slog.String("error", err.Error()))
			continue
		}
		removed++
		x.logger.Debug("reindex: removed stale vector", slog.String("id", id))
	}
	return removed, nil
}

// OnChange keeps the vector for the record at path in step with a file
// change made outside the service (an editor save, a sync tool). kind is one
// of "created", "updated" or "deleted". Records whose vector is already
// current are left alone, so changes the service wrote itself cost nothing.
func (x *Indexer) OnChange(ctx context.Context, p Parser, kind, path string) {
	if kind == "deleted" {
		id := journal.IDFromPath(path)
		if err := x.vectors.Delete(ctx, id); err != nil {
			x.logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		}
		return
	}
	rec := p.Parse(path)
	if rec == nil || x.current(ctx, *rec) {
		return
	}
	if err := x.IndexRecord(ctx, *rec); err != nil {
		x.logger.Warn("sync: embed failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		return
	}
	x.logger.Debug("sync: embedded", slog.String("id", rec.ID), slog.String("op", kind))
}

func (x *Indexer) current(ctx context.Context, rec models.Record) bool {
	e, err := x.vectors.Get(ctx, rec.ID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			x.logger.Warn("reindex: lookup failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
		}
		return false
	}
	return e.Metadata[MetaChecksum] == Metadata(rec)[MetaChecksum]
}
