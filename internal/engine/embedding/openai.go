package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// OpenAIConfig configures an OpenAI-compatible /embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int // sent as "dimensions" for models that accept it
}

// OpenAIProvider talks to any OpenAI-compatible embeddings API.
type OpenAIProvider struct {
	http  *resty.Client
	model string
	dims  int
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIProvider creates the provider. The per-call timeout is applied by
// the Client through the request context.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embedding api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	client := resty.New().
		SetBaseURL(base).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	dims := 0
	if strings.HasPrefix(cfg.Model, "text-embedding-3") {
		dims = cfg.Dimensions
	}
	return &OpenAIProvider{http: client, model: cfg.Model, dims: dims}, nil
}

// Model returns the configured model identifier.
func (p *OpenAIProvider) Model() string { return p.model }

// Embed sends one input and returns the first embedding of the response.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Result, error) {
	var out embeddingResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Model: p.model, Input: text, Dimensions: p.dims}).
		SetResult(&out).
		Post("/embeddings")
	if err != nil {
		return Result{}, fmt.Errorf("openai embeddings: %w", err)
	}
	if resp.IsError() {
		msg := gjson.GetBytes(resp.Body(), "error.message").String()
		if msg == "" {
			msg = engine.TruncateRunes(strings.TrimSpace(string(resp.Body())), 200, "...")
		}
		return Result{}, &engine.StatusError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if len(out.Data) == 0 {
		return Result{}, fmt.Errorf("%w: response has no data", ErrInvalidVector)
	}
	model := out.Model
	if model == "" {
		model = p.model
	}
	return Result{Vector: out.Data[0].Embedding, Model: model, PromptTokens: out.Usage.PromptTokens}, nil
}
