package embedding

import (
	"context"
	"fmt"

	"github.com/starford/rallylog/internal/apperr"
)

// Provider names accepted by NewProvider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderFake   = "fake"
)

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Prefixes   Prefixes
}

// Prefixes are prepended to the text according to the task mode. Models
// such as nomic-embed-text expect them; Gemini takes the task as a request
// parameter instead.
type Prefixes struct {
	Document string
	Query    string
}

func (p Prefixes) apply(text string, task TaskType) string {
	if task == TaskQuery {
		return p.Query + text
	}
	return p.Document + text
}

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	case ProviderFake:
		return NewFake(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q: %w", cfg.Provider, apperr.ErrInvalidInput)
	}
}
