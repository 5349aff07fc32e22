// Package hybrid is the query façade. It answers the comparison,
// contradiction and question-answering lookups by combining vector
// similarity with synonym-expanded, scored lexical search, and degrades to
// the lexical path whenever the vector side cannot answer.
package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/embedding"
	"github.com/starford/rallylog/internal/index"
	"github.com/starford/rallylog/internal/indexer"
	"github.com/starford/rallylog/internal/metrics"
	"github.com/starford/rallylog/internal/models"
	"github.com/starford/rallylog/internal/vectorindex"
)

// Defaults for the façade operations.
const (
	DefaultLimit             = 5
	DefaultExcludeRecentDays = 3
	DefaultRecentCount       = 5
	fallbackLookbackDays     = 30
	overfetch                = 3
)

// Source names the retrieval path that produced a Result.
type Source string

const (
	SourceVector  Source = "vector"
	SourceLexical Source = "lexical"
	SourceRecent  Source = "recent"
)

// Status distinguishes "nothing matched" from a populated result.
type Status string

const (
	StatusMatched Status = "matched"
	StatusNoMatch Status = "no_match"
)

// Hit is one ranked record. Score is set on the lexical path, Distance on
// the vector path.
type Hit struct {
	Record   models.Record `json:"record"`
	Score    int           `json:"score,omitempty"`
	Distance float64       `json:"distance,omitempty"`
}

// Result is the answer to a façade query.
type Result struct {
	Hits     []Hit    `json:"hits"`
	Source   Source   `json:"source"`
	Keywords []string `json:"keywords,omitempty"`
	Status   Status   `json:"status"`
}

// Records returns the hit records in rank order.
func (r *Result) Records() []models.Record {
	out := make([]models.Record, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Record
	}
	return out
}

// Embedder produces query vectors. *embedding.Generator satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string, task embedding.TaskType) ([]float32, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectors enables the vector path.
func WithVectors(idx vectorindex.Index, emb Embedder) Option {
	return func(e *Engine) {
		e.vectors = idx
		e.embedder = emb
	}
}

// WithKeywordExtractor sets the keyword extractor used before falling back
// to NaiveKeywords.
func WithKeywordExtractor(x KeywordExtractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the hybrid query façade.
type Engine struct {
	lexical   index.Searcher
	vectors   vectorindex.Index
	embedder  Embedder
	extractor KeywordExtractor
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates an Engine over a lexical searcher. Without WithVectors every
// query takes the lexical path.
func New(lexical index.Searcher, opts ...Option) *Engine {
	e := &Engine{
		lexical: lexical,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComparisonOptions tunes SimilarForComparison.
type ComparisonOptions struct {
	// Scene restricts candidates to one scene. Empty means any.
	Scene string
	// Limit is the maximum hit count. Zero selects DefaultLimit.
	Limit int
	// ExcludeRecentDays drops records dated within that many days of today,
	// along with undated ones. Zero selects DefaultExcludeRecentDays; a
	// negative value disables the exclusion.
	ExcludeRecentDays int
}

// SimilarForComparison finds past records resembling text, typically
// today's entry, so the two can be compared.
func (e *Engine) SimilarForComparison(ctx context.Context, text string, opts ComparisonOptions) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("hybrid: comparison text is empty: %w", apperr.ErrInvalidInput)
	}
	limit := orDefault(opts.Limit, DefaultLimit)
	exclude := opts.ExcludeRecentDays
	if exclude == 0 {
		exclude = DefaultExcludeRecentDays
	}
	var keep func(models.Record) bool
	if exclude > 0 {
		cutoff := models.Day(e.now()).AddDate(0, 0, -exclude)
		keep = func(r models.Record) bool {
			return r.HasDate() && models.Day(r.Date).Before(cutoff)
		}
	}

	var filter vectorindex.Filter
	if opts.Scene != "" {
		filter = vectorindex.Filter{indexer.MetaScene: opts.Scene}
	}
	if hits, ok := e.vectorHits(ctx, "similar", text, limit, filter, keep); ok {
		return e.finish("similar", &Result{Hits: hits, Source: SourceVector}), nil
	}

	res, err := e.lexicalQuery(ctx, text, opts.Scene, limit, keep)
	if err != nil {
		return nil, err
	}
	return e.finish("similar", res), nil
}

// RecentForContradiction returns the n newest records regardless of scene,
// skipping excludeID, so a new entry can be checked against them.
func (e *Engine) RecentForContradiction(ctx context.Context, n int, excludeID string) (*Result, error) {
	n = orDefault(n, DefaultRecentCount)
	recs, err := e.lexical.Search(ctx, models.SearchFilters{}, n+1)
	if err != nil {
		return nil, fmt.Errorf("hybrid: recent: %w", err)
	}
	hits := make([]Hit, 0, n)
	for _, r := range recs {
		if r.ID == excludeID || len(hits) == n {
			continue
		}
		hits = append(hits, Hit{Record: r})
	}
	return e.finish("recent", &Result{Hits: hits, Source: SourceRecent}), nil
}

// RelatedForQuestion returns the k records most related to question.
func (e *Engine) RelatedForQuestion(ctx context.Context, question string, k int) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("hybrid: question is empty: %w", apperr.ErrInvalidInput)
	}
	k = orDefault(k, DefaultLimit)
	if hits, ok := e.vectorHits(ctx, "related", question, k, nil, nil); ok {
		return e.finish("related", &Result{Hits: hits, Source: SourceVector}), nil
	}
	res, err := e.lexicalQuery(ctx, question, "", k, nil)
	if err != nil {
		return nil, err
	}
	return e.finish("related", res), nil
}

// SensationSearch expands query through the synonym tables, searches every
// expansion and ranks the merged set by Score.
func (e *Engine) SensationSearch(ctx context.Context, query, scene string, limit int) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("hybrid: sensation query is empty: %w", apperr.ErrInvalidInput)
	}
	limit = orDefault(limit, DefaultLimit)
	terms := ExpandTerms(query)
	recs, err := e.searchTerms(ctx, terms, scene)
	if err != nil {
		return nil, err
	}
	hits := rankByScore(recs, terms, e.now())
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return e.finish("sensation", &Result{Hits: hits, Source: SourceLexical, Keywords: terms}), nil
}

// vectorHits runs the vector path. ok is false when the path is unavailable,
// failed, or produced nothing usable; the caller then goes lexical.
func (e *Engine) vectorHits(ctx context.Context, op, text string, limit int, filter vectorindex.Filter, keep func(models.Record) bool) ([]Hit, bool) {
	if e.vectors == nil || e.embedder == nil {
		return nil, false
	}
	n, err := e.vectors.Count(ctx, nil)
	if err != nil {
		e.fallback(op, "count failed", err)
		return nil, false
	}
	if n == 0 {
		e.logger.Debug("hybrid: vector index empty, using lexical search", slog.String("operation", op))
		return nil, false
	}

	vec, err := e.embedder.Embed(ctx, text, embedding.TaskQuery)
	if err != nil {
		e.fallback(op, "query embedding failed", err)
		return nil, false
	}
	k := limit
	if keep != nil {
		k = limit * overfetch
	}
	var hits []Hit
	for {
		matches, err := e.vectors.Query(ctx, vec, k, filter)
		if err != nil {
			e.fallback(op, "vector query failed", err)
			return nil, false
		}
		hits = e.keepHits(ctx, matches, limit, keep)
		// Widen the top-k while the filter discards too much and the index
		// still holds unseen entries.
		if len(hits) == limit || len(matches) < k || k >= n {
			break
		}
		k *= 2
	}
	if len(hits) == 0 {
		e.logger.Debug("hybrid: no vector hits survived filtering, using lexical search", slog.String("operation", op))
		return nil, false
	}
	return hits, true
}

// keepHits hydrates matches in rank order and returns the first limit that
// pass keep.
func (e *Engine) keepHits(ctx context.Context, matches []vectorindex.Match, limit int, keep func(models.Record) bool) []Hit {
	hits := make([]Hit, 0, limit)
	for _, m := range matches {
		rec := e.hydrate(ctx, m)
		if keep != nil && !keep(rec) {
			continue
		}
		hits = append(hits, Hit{Record: rec, Distance: m.Distance})
		if len(hits) == limit {
			break
		}
	}
	return hits
}

// hydrate prefers the live record; an entry whose file is gone is rebuilt
// from its vector metadata.
func (e *Engine) hydrate(ctx context.Context, m vectorindex.Match) models.Record {
	if rec, err := e.lexical.Get(ctx, m.ID); err == nil {
		return *rec
	}
	return indexer.RecordFromMetadata(m.ID, m.Metadata, m.Document)
}

func (e *Engine) fallback(op, reason string, err error) {
	e.logger.Warn("hybrid: "+reason+", falling back to lexical search",
		slog.String("operation", op),
		slog.String("error", err.Error()))
}

// lexicalQuery extracts keywords from text, expands and searches them, and
// ranks the union. With no usable keyword it lists the recent lookback
// window instead.
func (e *Engine) lexicalQuery(ctx context.Context, text, scene string, limit int, keep func(models.Record) bool) (*Result, error) {
	keywords := e.keywords(ctx, text)

	var terms []string
	seen := map[string]bool{}
	for _, kw := range keywords {
		for _, t := range ExpandTerms(kw) {
			if k := strings.ToLower(t); !seen[k] {
				seen[k] = true
				terms = append(terms, t)
			}
		}
	}

	var recs []models.Record
	var err error
	if len(terms) == 0 {
		now := e.now()
		recs, err = e.lexical.Search(ctx, models.SearchFilters{
			Scene:     scene,
			DateRange: &models.DateRange{From: now.AddDate(0, 0, -fallbackLookbackDays), To: now},
		}, 0)
		if err != nil {
			return nil, fmt.Errorf("hybrid: lookback search: %w", err)
		}
	} else if recs, err = e.searchTerms(ctx, terms, scene); err != nil {
		return nil, err
	}

	if keep != nil {
		kept := recs[:0]
		for _, r := range recs {
			if keep(r) {
				kept = append(kept, r)
			}
		}
		recs = kept
	}

	hits := rankByScore(recs, terms, e.now())
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return &Result{Hits: hits, Source: SourceLexical, Keywords: keywords}, nil
}

// searchTerms runs one lexical search per term and merges the results by id.
func (e *Engine) searchTerms(ctx context.Context, terms []string, scene string) ([]models.Record, error) {
	var out []models.Record
	seen := map[string]bool{}
	for _, t := range terms {
		recs, err := e.lexical.Search(ctx, models.SearchFilters{Keywords: []string{t}, Scene: scene}, 0)
		if err != nil {
			return nil, fmt.Errorf("hybrid: search %q: %w", t, err)
		}
		for _, r := range recs {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (e *Engine) finish(op string, r *Result) *Result {
	if r.Hits == nil {
		r.Hits = []Hit{}
	}
	r.Status = StatusMatched
	if len(r.Hits) == 0 {
		r.Status = StatusNoMatch
	}
	e.metrics.Query(op, string(r.Source))
	return r
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
