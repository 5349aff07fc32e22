// Package embedding turns text into fixed-length vectors through an external
// embedding model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/metrics"
)

// TaskType selects how the model should treat the text. An index built from
// TaskDocument vectors must be probed with TaskQuery vectors; mixing them up
// does not fail, it just quietly degrades recall.
type TaskType string

const (
	TaskDocument TaskType = "document"
	TaskQuery    TaskType = "query"
)

// Valid reports whether t is a known task mode.
func (t TaskType) Valid() bool {
	return t == TaskDocument || t == TaskQuery
}

// Provider is one embedding backend.
type Provider interface {
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
	Name() string
}

// Defaults.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultAttempts  = 3
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultInterval  = 100 * time.Millisecond
)

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout bounds every single provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

// WithRetry sets the attempt count and the first backoff delay.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(g *Generator) {
		g.attempts = attempts
		g.baseDelay = baseDelay
	}
}

// WithInterval sets the minimum spacing between provider calls in EmbedMany.
// Zero disables pacing.
func WithInterval(d time.Duration) Option {
	return func(g *Generator) { g.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// Generator wraps a Provider with input validation, per-call timeouts,
// retries and batch pacing.
type Generator struct {
	provider  Provider
	timeout   time.Duration
	attempts  int
	baseDelay time.Duration
	interval  time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewGenerator creates a Generator over p.
func NewGenerator(p Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:  p,
		timeout:   DefaultTimeout,
		attempts:  DefaultAttempts,
		baseDelay: DefaultBaseDelay,
		interval:  DefaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.attempts < 1 {
		g.attempts = 1
	}
	limit := rate.Inf
	if g.interval > 0 {
		limit = rate.Every(g.interval)
	}
	g.limiter = rate.NewLimiter(limit, 1)
	return g
}

// Provider returns the wrapped backend.
func (g *Generator) Provider() Provider {
	return g.provider
}

// Embed returns the embedding of text for the given task mode. Blank text
// fails with ErrInvalidInput before any network call; backend failures are
// wrapped with ErrExternalService.
func (g *Generator) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	if err := validate(text, task); err != nil {
		return nil, err
	}

	start := time.Now()
	var vec []float32
	err := retryWithBackoff(ctx, g.attempts, g.baseDelay, g.logger, func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		v, err := g.provider.Embed(callCtx, text, task)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return errors.New("provider returned an empty vector")
		}
		vec = v
		return nil
	})
	g.metrics.Embedded(string(task), time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("embedding: %s: %w: %w", g.provider.Name(), apperr.ErrExternalService, err)
	}
	return vec, nil
}

// BatchResult is the outcome for one EmbedMany input.
type BatchResult struct {
	Embedding []float32
	Err       error
}

// OK reports whether the item was embedded.
func (r BatchResult) OK() bool {
	return r.Err == nil && len(r.Embedding) > 0
}

// EmbedMany embeds texts one by one, spaced by the configured interval. The
// result has one entry per input; a failed item carries its error and a nil
// vector while the rest of the batch proceeds.
func (g *Generator) EmbedMany(ctx context.Context, texts []string, task TaskType) []BatchResult {
	out := make([]BatchResult, len(texts))
	failed := 0
	for i, text := range texts {
		if err := validate(text, task); err != nil {
			out[i].Err = err
			failed++
			continue
		}
		if err := g.limiter.Wait(ctx); err != nil {
			out[i].Err = err
			failed++
			continue
		}
		v, err := g.Embed(ctx, text, task)
		if err != nil {
			g.logger.Warn("embedding: batch item failed",
				slog.Int("index", i),
				slog.Int("total", len(texts)),
				slog.String("error", err.Error()))
			out[i].Err = err
			failed++
			continue
		}
		out[i].Embedding = v
	}
	if failed > 0 {
		g.logger.Info("embedding: batch finished with failures",
			slog.Int("total", len(texts)),
			slog.Int("failed", failed))
	}
	return out
}

func validate(text string, task TaskType) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("embedding: text is empty: %w", apperr.ErrInvalidInput)
	}
	if !task.Valid() {
		return fmt.Errorf("embedding: unknown task type %q: %w", task, apperr.ErrInvalidInput)
	}
	return nil
}
