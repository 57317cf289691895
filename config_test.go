package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("EMBEDDING_MODEL", "")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbeddingProvider != "openai" || cfg.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("provider/model = %s/%s", cfg.EmbeddingProvider, cfg.EmbeddingModel)
	}
	if cfg.EmbeddingDimensions != 1536 || cfg.SimilarityTopN != 10 || cfg.MatchTTL != 24*time.Hour {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigGemini(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "Gemini")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("SIMILARITY_TOP_N", "25")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbeddingProvider != "gemini" || cfg.EmbeddingModel != "gemini-embedding-001" {
		t.Errorf("provider/model = %s/%s", cfg.EmbeddingProvider, cfg.EmbeddingModel)
	}
	if cfg.SimilarityTopN != 25 {
		t.Errorf("SimilarityTopN = %d, want 25", cfg.SimilarityTopN)
	}
}

func TestLoadConfigKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(path, []byte("sk-from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "sk-from-env")
	t.Setenv("EMBEDDING_API_KEY_FILE", path)
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EmbeddingAPIKey != "sk-from-file" {
		t.Errorf("EmbeddingAPIKey = %q, want key from file", cfg.EmbeddingAPIKey)
	}

	t.Setenv("EMBEDDING_API_KEY_FILE", filepath.Join(t.TempDir(), "missing"))
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "cohere")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for unknown provider")
	}
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("SIMILARITY_MIN_SCORE", "1.5")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for min score above 1")
	}
}
