// Package journal is the document store: one human-readable Markdown file per
// record under a date-bucketed directory tree.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/metrics"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/parser"
	"github.com/starford/rallylog/internal/storage"
)

// DefaultAppendLabel titles appended blocks when the caller gives none.
const DefaultAppendLabel = "Reflection"

// maxSuffix bounds the search for a free file name within one second.
const maxSuffix = 100

// Invalidator is notified after every successful write or append.
type Invalidator interface {
	Invalidate()
}

// Option configures a Store.
type Option func(*Store)

// WithDir sets the vault subtree holding records (default "sessions").
func WithDir(dir string) Option {
	return func(s *Store) { s.dir = dir }
}

// WithClock overrides the time source used for new file names and appends.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store reads and writes records through a storage.Provider.
type Store struct {
	fs      storage.Provider
	dir     string
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu           sync.RWMutex
	invalidators []Invalidator
}

// New creates a Store over fs.
func New(fs storage.Provider, opts ...Option) *Store {
	s := &Store{
		fs:     fs,
		dir:    DefaultDir,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an invalidator called after every successful mutation.
func (s *Store) Register(inv Invalidator) {
	s.mu.Lock()
	s.invalidators = append(s.invalidators, inv)
	s.mu.Unlock()
}

func (s *Store) invalidate() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invalidators {
		inv.Invalidate()
	}
}

// Dir returns the records subtree relative to the vault root.
func (s *Store) Dir() string {
	return s.dir
}

// Write serializes rec to disk and returns the stored record.
//
// With an empty rec.Path a new file is created under
// dir/YYYY/MM/YYYY-MM-DD-HHMMSS-scene.md; a numeric suffix keeps the id unique
// if that name is taken. A non-empty rec.Path rewrites that existing file.
func (s *Store) Write(ctx context.Context, rec models.Record) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRecord(&rec); err != nil {
		return nil, fmt.Errorf("journal: %v: %w", err, apperr.ErrInvalidInput)
	}

	if strings.TrimSpace(rec.Scene) == "" {
		rec.Scene = DefaultScene
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if !rec.HasDate() {
		rec.Date = dayOf(rec.CreatedAt)
	}

	data, err := parser.Render(&parser.Document{
		Date:  rec.Date,
		Scene: rec.Scene,
		Tags:  rec.Tags,
		Title: rec.Title,
		Extra: rec.Extra,
		Body:  rec.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("journal: render: %w", err)
	}

	var target string
	if rec.Path != "" {
		target = rec.Path
		if _, err := s.fs.Stat(target); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("journal: rewrite %s: %w", target, apperr.ErrNotFound)
			}
			return nil, fmt.Errorf("journal: rewrite %s: %w", target, err)
		}
		if err := s.fs.Write(target, data); err != nil {
			return nil, fmt.Errorf("journal: rewrite %s: %w", target, err)
		}
	} else {
		target, err = s.create(rec, data)
		if err != nil {
			return nil, err
		}
	}

	s.invalidate()
	s.logger.Debug("journal: record written", slog.String("path", target))

	out, err := s.parseFile(target)
	if err != nil {
		return nil, fmt.Errorf("journal: reread %s: %w", target, err)
	}
	return out, nil
}

func (s *Store) create(rec models.Record, data []byte) (string, error) {
	for n := 1; n <= maxSuffix; n++ {
		p := recordPath(s.dir, rec.CreatedAt, rec.Scene, n)
		err := s.fs.Create(p, data)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			return "", fmt.Errorf("journal: create %s: %w", p, err)
		}
	}
	return "", fmt.Errorf("journal: no free file name for %s: %w",
		recordPath(s.dir, rec.CreatedAt, rec.Scene, 1), apperr.ErrAlreadyExists)
}

// Parse loads the record at path. It returns nil, after logging, when the
// file is missing or malformed; it never fails.
func (s *Store) Parse(path string) *models.Record {
	rec, err := s.parseFile(path)
	if err != nil {
		s.metrics.ParseFailed()
		s.logger.Warn("journal: skipping unreadable record",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}
	return rec
}

func (s *Store) parseFile(path string) (*models.Record, error) {
	data, err := s.fs.Read(path)
	if err != nil {
		return nil, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}

	id := IDFromPath(path)
	rec := &models.Record{
		ID:         id,
		Path:       path,
		Date:       doc.Date,
		Scene:      doc.Scene,
		Tags:       doc.Tags,
		Title:      doc.Title,
		Body:       doc.Body,
		Extra:      doc.Extra,
		ModifiedAt: info.ModTime(),
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if created, scene, ok := filenameInfo(id); ok {
		rec.CreatedAt = created
		if rec.Scene == "" {
			rec.Scene = scene
		}
		if !rec.HasDate() {
			rec.Date = dayOf(created)
		}
	}
	return rec, nil
}

// Append adds a timestamped callout block to the end of the record at path.
// It is the only in-place mutation of an existing record.
func (s *Store) Append(ctx context.Context, path, text, label string) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("journal: append text is empty: %w", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(label) == "" {
		label = DefaultAppendLabel
	}

	existing, err := s.fs.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("journal: append %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("journal: append %s: %w", path, err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(string(existing), "\n\r\t "))
	b.WriteString("\n\n")
	b.WriteString(formatCallout(label, text, s.now()))

	if err := s.fs.Write(path, []byte(b.String())); err != nil {
		return nil, fmt.Errorf("journal: append %s: %w", path, err)
	}
	s.invalidate()

	out, err := s.parseFile(path)
	if err != nil {
		return nil, fmt.Errorf("journal: reread %s: %w", path, err)
	}
	return out, nil
}

// ScanAll walks the records subtree and parses every file, skipping the ones
// that fail. Listing errors are returned: a missing persistence directory is
// not recoverable here.
func (s *Store) ScanAll(ctx context.Context) ([]models.Record, error) {
	start := time.Now()
	files, err := s.fs.List(s.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}

	out := make([]models.Record, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if rec := s.Parse(f.Path); rec != nil {
			out = append(out, *rec)
		}
	}

	s.metrics.ScanCompleted(time.Since(start), len(out))
	s.logger.Debug("journal: scan completed",
		slog.Int("files", len(files)),
		slog.Int("records", len(out)),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

// Get resolves id to its record. The id encodes the file location, so this
// reads a single file unless the record was moved by hand.
func (s *Store) Get(ctx context.Context, id string) (*models.Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("journal: id is empty: %w", apperr.ErrInvalidInput)
	}
	if p, ok := pathForID(s.dir, id); ok {
		if rec, err := s.parseFile(p); err == nil {
			return rec, nil
		}
	}
	all, err := s.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, fmt.Errorf("journal: record %s: %w", id, apperr.ErrNotFound)
}

func validateRecord(rec *models.Record) error {
	return validation.ValidateStruct(rec,
		validation.Field(&rec.Body, validation.By(notBlank)),
		validation.Field(&rec.Scene, validation.Length(0, 64)),
		validation.Field(&rec.Path, validation.When(rec.Path != "", validation.By(markdownPath))),
	)
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func markdownPath(value any) error {
	s, _ := value.(string)
	if !strings.HasSuffix(s, ".md") {
		return errors.New("must end with .md")
	}
	return nil
}
