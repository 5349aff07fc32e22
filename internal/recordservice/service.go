// Package recordservice coordinates journal writes with re-embedding.
package recordservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/rallylog/internal/models"
)

// Store is the journal surface the service writes through.
type Store interface {
	Write(ctx context.Context, rec models.Record) (*models.Record, error)
	Append(ctx context.Context, path, text, label string) (*models.Record, error)
	Get(ctx context.Context, id string) (*models.Record, error)
}

// Indexer re-embeds a record after it changed.
type Indexer interface {
	IndexRecord(ctx context.Context, rec models.Record) error
}

// WriteResult is the outcome of a write. Embedded is false when the record
// was saved but its vector could not be refreshed.
type WriteResult struct {
	Record   *models.Record `json:"record"`
	Embedded bool           `json:"embedded"`
}

// Service coordinates the journal store and the vector indexer.
type Service struct {
	store   Store
	indexer Indexer
	logger  *slog.Logger
}

// NewService creates a record service. indexer may be nil, in which case
// writes are never embedded.
func NewService(store Store, indexer Indexer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, indexer: indexer, logger: logger}
}

// Create writes a new record and embeds it.
func (s *Service) Create(ctx context.Context, rec models.Record) (*WriteResult, error) {
	saved, err := s.store.Write(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Record: saved, Embedded: s.reembed(ctx, saved)}, nil
}

// Append adds a labelled block to the record with the given id and
// re-embeds it.
func (s *Service) Append(ctx context.Context, id, text, label string) (*WriteResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	saved, err := s.store.Append(ctx, rec.Path, text, label)
	if err != nil {
		return nil, err
	}
	return &WriteResult{Record: saved, Embedded: s.reembed(ctx, saved)}, nil
}

// Get returns the record with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("recordservice: get: %w", err)
	}
	return rec, nil
}

// reembed refreshes the record's vector. A failure is logged, never
// returned: the file write already succeeded.
func (s *Service) reembed(ctx context.Context, rec *models.Record) bool {
	if s.indexer == nil {
		return false
	}
	if err := s.indexer.IndexRecord(ctx, *rec); err != nil {
		s.logger.Warn("recordservice: embedding after write failed",
			slog.String("id", rec.ID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}
