package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider embeds text with the Gemini API.
type GeminiProvider struct {
	models embedContenter
	model  string
	dims   int32
}

// embedContenter is the slice of genai.Models the provider uses.
type embedContenter interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// NewGeminiProvider constructs a provider backed by the Gemini API.
func NewGeminiProvider(ctx context.Context, apiKey, model string, dims int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{models: client.Models, model: model, dims: int32(dims)}, nil
}

// Model returns the configured model identifier.
func (p *GeminiProvider) Model() string { return p.model }

// Embed requests a semantic-similarity embedding for text.
func (p *GeminiProvider) Embed(ctx context.Context, text string) (Result, error) {
	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}
	if p.dims > 0 {
		dims := p.dims
		cfg.OutputDimensionality = &dims
	}
	resp, err := p.models.EmbedContent(ctx, p.model, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return Result{}, fmt.Errorf("%w: no embeddings returned", ErrInvalidVector)
	}
	return Result{Vector: resp.Embeddings[0].Values, Model: p.model}, nil
}
