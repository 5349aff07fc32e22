// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/starford/rallylog/internal/api"
	"github.com/starford/rallylog/internal/embedding"
	"github.com/starford/rallylog/internal/hybrid"
	"github.com/starford/rallylog/internal/index"
	"github.com/starford/rallylog/internal/indexer"
	"github.com/starford/rallylog/internal/journal"
	"github.com/starford/rallylog/internal/mcpserver"
	"github.com/starford/rallylog/internal/metrics"
	"github.com/starford/rallylog/internal/recordservice"
	"github.com/starford/rallylog/internal/sse"
	"github.com/starford/rallylog/internal/storage"
	"github.com/starford/rallylog/internal/vectorindex"
)

const (
	shutdownTimeout = 10 * time.Second
	changeBuffer    = 256
)

// components is the wired engine shared by every command.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	registry *prometheus.Registry
	store    *journal.Store
	cache    *index.Cache
	index    *index.Index
	vectors  *vectorindex.Store // nil when embedding is disabled
	indexer  *indexer.Indexer   // nil when embedding is disabled
	records  *recordservice.Service
	engine   *hybrid.Engine
}

func setup(opts []Option) (*Config, *slog.Logger, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return app.config, logger, nil
}

func build(ctx context.Context, cfg *Config, logger *slog.Logger) (*components, error) {
	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Journal.VaultPath),
		slog.String("journal_dir", cfg.Journal.Dir),
		slog.String("embedding_provider", cfg.Embedding.Provider),
		slog.String("vector_backend", cfg.Vector.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Journal.VaultPath, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	fs, err := storage.NewFS(cfg.Journal.VaultPath, storage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	logger.Debug("vault opened", slog.String("root", fs.Root()))

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	store := journal.New(fs,
		journal.WithDir(cfg.Journal.Dir),
		journal.WithLogger(logger),
		journal.WithMetrics(m))
	cache := index.NewCache(store,
		index.WithTTL(cfg.Journal.CacheTTL),
		index.WithCacheLogger(logger),
		index.WithCacheMetrics(m))
	store.Register(cache)
	lexical := index.New(cache)

	c := &components{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		store:    store,
		cache:    cache,
		index:    lexical,
	}

	engineOpts := []hybrid.Option{hybrid.WithLogger(logger), hybrid.WithMetrics(m)}
	var reembed recordservice.Indexer

	if cfg.Embedding.Enabled() {
		provider, err := embedding.NewProvider(ctx, cfg.Embedding.ProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("init embedding provider: %w", err)
		}
		gen := embedding.NewGenerator(provider, append(cfg.Embedding.GeneratorOptions(),
			embedding.WithLogger(logger),
			embedding.WithMetrics(m))...)

		vectors, err := vectorindex.Open(cfg.Vector.IndexConfig(),
			vectorindex.WithLogger(logger),
			vectorindex.WithMetrics(m))
		if err != nil {
			return nil, fmt.Errorf("init vector index: %w", err)
		}
		c.vectors = vectors
		c.indexer = indexer.New(store, gen, vectors, logger)
		reembed = c.indexer
		engineOpts = append(engineOpts, hybrid.WithVectors(vectors, gen))

		logger.Info("Vector search enabled",
			slog.String("provider", provider.Name()),
			slog.String("backend", cfg.Vector.Backend),
			slog.String("path", cfg.Vector.Path))
	} else {
		logger.Info("Vector search disabled, queries run lexical only")
	}

	c.records = recordservice.NewService(store, reembed, logger)
	c.engine = hybrid.New(lexical, engineOpts...)
	return c, nil
}

func (c *components) Close() {
	if c.vectors != nil {
		if err := c.vectors.Close(); err != nil {
			c.logger.Warn("vector index close failed", slog.String("error", err.Error()))
		}
	}
}

func (c *components) reindexer() api.Reindexer {
	if c.indexer == nil {
		return nil
	}
	return c.indexer
}

type change struct {
	kind string
	path string
}

// watch runs the file watcher until ctx ends. Every record change is
// passed to notify, and, with embedding enabled, queued for re-embedding so
// hand edits reach the vector index without a full reindex.
func (c *components) watch(ctx context.Context, notify index.EventCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changes chan change
	done := make(chan struct{})
	if c.indexer != nil {
		changes = make(chan change, changeBuffer)
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case ch := <-changes:
					c.indexer.OnChange(ctx, c.store, ch.kind, ch.path)
				}
			}
		}()
	} else {
		close(done)
	}

	prefix := strings.TrimSuffix(c.store.Dir(), "/") + "/"
	err := index.Watch(ctx, c.cfg.Journal.VaultPath, c.cache, c.logger, func(kind, path string) {
		if !strings.HasPrefix(path, prefix) {
			return
		}
		if notify != nil {
			notify(kind, path)
		}
		if changes == nil {
			return
		}
		select {
		case changes <- change{kind: kind, path: path}:
		default:
			c.logger.Warn("watcher: re-embed queue full, change dropped; run reindex to catch up",
				slog.String("path", path))
		}
	})
	cancel()
	<-done
	if err != nil {
		c.logger.Warn("watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

// catchUp re-embeds records changed while the service was down.
func (c *components) catchUp(ctx context.Context, broker *sse.Broker) {
	if c.indexer == nil {
		return
	}
	st, err := c.indexer.Reindex(ctx, false)
	if err != nil {
		c.logger.Error("startup reindex failed", slog.String("error", err.Error()))
		return
	}
	if broker != nil {
		broker.Publish(sse.Event{Type: "reindex.done", Data: st})
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(api.Deps{
		Records:   c.records,
		Search:    c.index,
		Query:     c.engine,
		Reindexer: c.reindexer(),
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := c.cache.GetOrRefresh(req.Context()); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler(c.registry))

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher feeding the event stream and the re-embed queue.
	g.Go(func() error {
		return c.watch(gCtx, broker.PublishRecordEvent)
	})

	g.Go(func() error {
		c.catchUp(gCtx, broker)
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout until stdin closes. Logs go
// to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	cfg, logger, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := mcpserver.New(c.records, c.index, c.engine)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.watch(gCtx, nil)
	})
	g.Go(func() error {
		defer cancel()
		logger.Info("MCP server listening on stdio")
		return srv.ServeStdio()
	})

	return g.Wait()
}

// Reindex re-embeds the journal once and returns the run's statistics.
func Reindex(ctx context.Context, force bool, opts ...Option) (indexer.Stats, error) {
	cfg, logger, err := setup(opts)
	if err != nil {
		return indexer.Stats{}, err
	}
	if !cfg.Embedding.Enabled() {
		return indexer.Stats{}, fmt.Errorf("reindex: embedding provider is %q", cfg.Embedding.Provider)
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return indexer.Stats{}, err
	}
	defer c.Close()

	return c.indexer.Reindex(ctx, force)
}

// Query modes accepted by QueryRequest.
const (
	QuerySimilar   = "similar"
	QueryRecent    = "recent"
	QueryRelated   = "related"
	QuerySensation = "sensation"
)

// QueryRequest is a one-shot retrieval query issued from the command line.
type QueryRequest struct {
	Mode  string
	Text  string
	Scene string
	Limit int
}

// Query runs a single retrieval query against the configured journal.
func Query(ctx context.Context, req QueryRequest, opts ...Option) (*hybrid.Result, error) {
	cfg, logger, err := setup(append([]Option{WithLogOutput(io.Discard)}, opts...))
	if err != nil {
		return nil, err
	}

	c, err := build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	switch req.Mode {
	case QuerySimilar:
		return c.engine.SimilarForComparison(ctx, req.Text, hybrid.ComparisonOptions{Scene: req.Scene, Limit: req.Limit})
	case QueryRecent:
		return c.engine.RecentForContradiction(ctx, req.Limit, "")
	case QueryRelated:
		return c.engine.RelatedForQuestion(ctx, req.Text, req.Limit)
	case QuerySensation:
		return c.engine.SensationSearch(ctx, req.Text, req.Scene, req.Limit)
	default:
		return nil, fmt.Errorf("unknown query mode %q", req.Mode)
	}
}
