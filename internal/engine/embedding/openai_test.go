package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anatolykoptev/go_match/internal/engine"
)

func TestOpenAIEmbed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"text-embedding-3-small","usage":{"prompt_tokens":7,"total_tokens":7}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "text-embedding-3-small", Dimensions: 3})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	res, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got.Input != "hello world" || got.Dimensions != 3 || got.Model != "text-embedding-3-small" {
		t.Errorf("unexpected request %+v", got)
	}
	if len(res.Vector) != 3 || res.PromptTokens != 7 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestOpenAIOmitsDimensionsForLegacyModels(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,0],"index":0}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-ada-002", Dimensions: 1536})
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if _, ok := raw["dimensions"]; ok {
		t.Error("dimensions must not be sent for ada-002")
	}
	if res.Model != "text-embedding-ada-002" {
		t.Errorf("model fallback = %q", res.Model)
	}
}

func TestOpenAIErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, "Rate limit reached", true},
		{"bad key", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key"}}`, "Incorrect API key", false},
		{"plain body", http.StatusBadGateway, `upstream down`, "upstream down", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			if err != nil {
				t.Fatal(err)
			}
			_, err = p.Embed(context.Background(), "hello world")
			var se *engine.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if se.StatusCode != tt.status || se.Message != tt.wantMsg {
				t.Errorf("got %d %q", se.StatusCode, se.Message)
			}
			if isRetryable(err) != tt.retryable {
				t.Errorf("isRetryable = %v, want %v", !tt.retryable, tt.retryable)
			}
		})
	}
}

func TestOpenAIEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if _, err := p.Embed(context.Background(), "hello world"); !errors.Is(err, ErrInvalidVector) {
		t.Fatalf("expected ErrInvalidVector, got %v", err)
	}
}

func TestNewOpenAIProviderValidation(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{Model: "m"}); err == nil {
		t.Error("missing key must fail")
	}
	if _, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Error("missing model must fail")
	}
}
