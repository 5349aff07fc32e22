package embedding

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAI embeds through an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	prefixes   Prefixes
}

// NewOpenAI creates an OpenAI provider. BaseURL may point at any compatible
// server.
func NewOpenAI(cfg ProviderConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("embedding: openai requires an API key or a base URL")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(oc),
		model:      openai.EmbeddingModel(model),
		dimensions: cfg.Dimensions,
		prefixes:   cfg.Prefixes,
	}, nil
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{o.prefixes.apply(text, task)},
		Model:      o.model,
		Dimensions: o.dimensions,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}
