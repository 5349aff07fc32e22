package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Ollama defaults. nomic-embed-text is trained with these task prefixes.
const (
	DefaultOllamaModel   = "nomic-embed-text"
	DefaultOllamaURL     = "http://localhost:11434"
	ollamaDocumentPrefix = "search_document: "
	ollamaQueryPrefix    = "search_query: "
)

// Ollama embeds through a local Ollama server.
type Ollama struct {
	embedder *embeddings.EmbedderImpl
	prefixes Prefixes
}

// NewOllama creates an Ollama provider.
func NewOllama(cfg ProviderConfig) (*Ollama, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	url := cfg.BaseURL
	if url == "" {
		url = DefaultOllamaURL
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(url))
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama embedder: %w", err)
	}

	prefixes := cfg.Prefixes
	if prefixes == (Prefixes{}) {
		prefixes = Prefixes{Document: ollamaDocumentPrefix, Query: ollamaQueryPrefix}
	}
	return &Ollama{embedder: emb, prefixes: prefixes}, nil
}

func (o *Ollama) Name() string { return ProviderOllama }

func (o *Ollama) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	text = o.prefixes.apply(text, task)
	if task == TaskQuery {
		return o.embedder.EmbedQuery(ctx, text)
	}
	vecs, err := o.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("ollama returned no embeddings")
	}
	return vecs[0], nil
}
