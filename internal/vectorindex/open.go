package vectorindex

import (
	"fmt"

	"github.com/starford/rallylog/internal/apperr"
)

// Backend names accepted by Open.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
	BackendMemory  = "memory"
)

// Config selects and locates a backend.
type Config struct {
	Backend    string
	Path       string
	Collection string
}

// Open creates the Store described by cfg.
func Open(cfg Config, opts ...Option) (*Store, error) {
	switch cfg.Backend {
	case BackendSQLite:
		return OpenSQLite(cfg.Path, opts...)
	case BackendChromem:
		return OpenChromem(cfg.Path, cfg.Collection, opts...)
	case BackendMemory:
		return NewMemory(opts...), nil
	default:
		return nil, fmt.Errorf("vectorindex: unknown backend %q: %w", cfg.Backend, apperr.ErrInvalidInput)
	}
}
