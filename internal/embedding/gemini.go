package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "text-embedding-004"

// Gemini embeds through the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGemini creates a Gemini provider. An API key is required.
func NewGemini(ctx context.Context, cfg ProviderConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding: gemini requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model, dimensions: cfg.Dimensions}, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Embed(ctx context.Context, text string, task TaskType) ([]float32, error) {
	conf := &genai.EmbedContentConfig{TaskType: geminiTask(task)}
	if g.dimensions > 0 {
		d := int32(g.dimensions)
		conf.OutputDimensionality = &d
	}
	res, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), conf)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, errors.New("gemini returned no embeddings")
	}
	return res.Embeddings[0].Values, nil
}

func geminiTask(task TaskType) string {
	if task == TaskQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}
