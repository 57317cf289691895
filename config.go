package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anatolykoptev/go-kit/env"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// loadConfig reads engine settings from the environment on top of the defaults.
func loadConfig() (engine.Config, error) {
	d := engine.DefaultConfig()
	provider := strings.ToLower(env.Str("EMBEDDING_PROVIDER", d.EmbeddingProvider))

	c := engine.Config{
		EmbeddingProvider:    provider,
		EmbeddingAPIBase:     env.Str("EMBEDDING_API_BASE", d.EmbeddingAPIBase),
		EmbeddingAPIKey:      env.Str("EMBEDDING_API_KEY", ""),
		EmbeddingModel:       env.Str("EMBEDDING_MODEL", ""),
		EmbeddingDimensions:  env.Int("EMBEDDING_DIMENSIONS", d.EmbeddingDimensions),
		EmbeddingTimeout:     env.Duration("EMBEDDING_TIMEOUT", d.EmbeddingTimeout),
		EmbeddingMaxInFlight: env.Int("EMBEDDING_MAX_IN_FLIGHT", d.EmbeddingMaxInFlight),
		EmbeddingRPS:         env.Float("EMBEDDING_RPS", d.EmbeddingRPS),
		EmbeddingRetry: engine.RetryConfig{
			MaxRetries:  env.Int("EMBEDDING_MAX_RETRIES", d.EmbeddingRetry.MaxRetries),
			InitialWait: env.Duration("EMBEDDING_RETRY_INITIAL", d.EmbeddingRetry.InitialWait),
			MaxWait:     env.Duration("EMBEDDING_RETRY_MAX", d.EmbeddingRetry.MaxWait),
			Multiplier:  env.Float("EMBEDDING_RETRY_MULTIPLIER", d.EmbeddingRetry.Multiplier),
		},
		BreakerFailures: uint32(max(0, env.Int("EMBEDDING_BREAKER_FAILURES", int(d.BreakerFailures)))),
		BreakerCooldown: env.Duration("EMBEDDING_BREAKER_COOLDOWN", d.BreakerCooldown),

		MaxTextChars:        env.Int("MAX_TEXT_CHARS", d.MaxTextChars),
		MaxDescriptionChars: env.Int("MAX_DESCRIPTION_CHARS", d.MaxDescriptionChars),
		MinTextChars:        env.Int("MIN_TEXT_CHARS", d.MinTextChars),

		SimilarityBatchSize:      env.Int("SIMILARITY_BATCH_SIZE", d.SimilarityBatchSize),
		SimilarityMinScore:       env.Float("SIMILARITY_MIN_SCORE", d.SimilarityMinScore),
		SimilarityTopN:           env.Int("SIMILARITY_TOP_N", d.SimilarityTopN),
		SimilarityRecomputeAfter: env.Duration("SIMILARITY_RECOMPUTE_AFTER", d.SimilarityRecomputeAfter),
		SimilarityRecomputeScan:  env.Duration("SIMILARITY_RECOMPUTE_SCAN", d.SimilarityRecomputeScan),
		MemoryPressureThreshold:  env.Float("MEMORY_PRESSURE_THRESHOLD", d.MemoryPressureThreshold),
		MemoryLimitBytes:         uint64(max(0, env.Int("MEMORY_LIMIT_BYTES", 0))),
		MemoryPressurePause:      env.Duration("MEMORY_PRESSURE_PAUSE", d.MemoryPressurePause),

		MatchTTL:          env.Duration("MATCH_TTL", d.MatchTTL),
		MatchDefaultLimit: env.Int("MATCH_DEFAULT_LIMIT", d.MatchDefaultLimit),
		MatchMaxLimit:     env.Int("MATCH_MAX_LIMIT", d.MatchMaxLimit),

		QueueWorkers:      env.Int("QUEUE_WORKERS", d.QueueWorkers),
		QueuePollInterval: env.Duration("QUEUE_POLL_INTERVAL", d.QueuePollInterval),
		QueueStaleAfter:   env.Duration("QUEUE_STALE_AFTER", d.QueueStaleAfter),

		DatabaseURL:          env.Str("DATABASE_URL", ""),
		SQLitePath:           env.Str("SQLITE_PATH", d.SQLitePath),
		RedisURL:             env.Str("REDIS_URL", ""),
		CacheTTL:             env.Duration("CACHE_TTL", d.CacheTTL),
		CacheMaxEntries:      env.Int("CACHE_MAX_ENTRIES", d.CacheMaxEntries),
		CacheCleanupInterval: env.Duration("CACHE_CLEANUP_INTERVAL", d.CacheCleanupInterval),
	}

	switch provider {
	case "openai":
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = d.EmbeddingModel
		}
	case "gemini":
		if c.EmbeddingModel == "" {
			c.EmbeddingModel = "gemini-embedding-001"
		}
	default:
		return c, fmt.Errorf("unknown EMBEDDING_PROVIDER %q (valid: openai, gemini)", provider)
	}

	// A key file wins over the plain variable.
	if path := env.Str("EMBEDDING_API_KEY_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read EMBEDDING_API_KEY_FILE: %w", err)
		}
		c.EmbeddingAPIKey = strings.TrimSpace(string(data))
	}

	if c.MemoryPressureThreshold < 0 || c.MemoryPressureThreshold > 1 {
		return c, fmt.Errorf("MEMORY_PRESSURE_THRESHOLD must be within [0, 1], got %v", c.MemoryPressureThreshold)
	}
	if c.SimilarityMinScore < 0 || c.SimilarityMinScore > 1 {
		return c, fmt.Errorf("SIMILARITY_MIN_SCORE must be within [0, 1], got %v", c.SimilarityMinScore)
	}
	return c, nil
}

// setupLogger installs the default slog handler from LOG_LEVEL and LOG_FORMAT.
func setupLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(env.Str("LOG_LEVEL", "info"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(env.Str("LOG_FORMAT", "text"), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
