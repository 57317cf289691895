package embedding

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	model  string
	config *genai.EmbedContentConfig
	text   string
	resp   *genai.EmbedContentResponse
	err    error
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.text = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func TestGeminiEmbed(t *testing.T) {
	fake := &fakeModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.3, 0.4}}},
	}}
	p := &GeminiProvider{models: fake, model: "gemini-embedding-001", dims: 2}

	res, err := p.Embed(context.Background(), "hello gemini")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if fake.text != "hello gemini" || fake.model != "gemini-embedding-001" {
		t.Errorf("unexpected call model=%q text=%q", fake.model, fake.text)
	}
	if fake.config.TaskType != "SEMANTIC_SIMILARITY" {
		t.Errorf("task type = %q", fake.config.TaskType)
	}
	if fake.config.OutputDimensionality == nil || *fake.config.OutputDimensionality != 2 {
		t.Error("output dimensionality not set")
	}
	if len(res.Vector) != 2 || res.Model != "gemini-embedding-001" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGeminiEmbedErrors(t *testing.T) {
	t.Run("api error keeps status", func(t *testing.T) {
		p := &GeminiProvider{models: &fakeModels{err: genai.APIError{Code: 429, Message: "quota"}}, model: "m"}
		_, err := p.Embed(context.Background(), "hello gemini")
		var apiErr genai.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != 429 {
			t.Fatalf("expected APIError 429, got %v", err)
		}
		if !isRetryable(err) {
			t.Error("429 must be retryable")
		}
	})
	t.Run("empty response", func(t *testing.T) {
		p := &GeminiProvider{models: &fakeModels{resp: &genai.EmbedContentResponse{}}, model: "m"}
		if _, err := p.Embed(context.Background(), "hello gemini"); !errors.Is(err, ErrInvalidVector) {
			t.Fatalf("expected ErrInvalidVector, got %v", err)
		}
	})
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), "", "", 0); err == nil {
		t.Error("missing key must fail")
	}
}
