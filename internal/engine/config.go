package engine

import "time"

// Config holds all engine configuration, injected from main.
type Config struct {
	// Embedding provider.
	EmbeddingProvider    string // "openai" or "gemini"
	EmbeddingAPIBase     string
	EmbeddingAPIKey      string
	EmbeddingModel       string
	EmbeddingDimensions  int
	EmbeddingTimeout     time.Duration
	EmbeddingMaxInFlight int     // global limit on simultaneous provider calls
	EmbeddingRPS         float64 // 0 = unlimited
	EmbeddingRetry       RetryConfig
	BreakerFailures      uint32        // consecutive failures that open the breaker, 0 disables
	BreakerCooldown      time.Duration // time the breaker stays open

	// Text normalizer.
	MaxTextChars        int
	MaxDescriptionChars int
	MinTextChars        int

	// Similarity engine.
	SimilarityBatchSize      int
	SimilarityMinScore       float64
	SimilarityTopN           int
	SimilarityRecomputeAfter time.Duration
	SimilarityRecomputeScan  time.Duration // 0 disables the due-recompute scan
	MemoryPressureThreshold  float64       // heap in use / limit, 0..1
	MemoryLimitBytes         uint64        // 0 = GOMEMLIMIT when set, else heap reserved from the OS
	MemoryPressurePause      time.Duration

	// Candidate scoring.
	MatchTTL          time.Duration
	MatchDefaultLimit int
	MatchMaxLimit     int

	// Queue worker.
	QueueWorkers      int
	QueuePollInterval time.Duration
	QueueStaleAfter   time.Duration

	// Storage and cache.
	DatabaseURL          string // postgres://... ; empty = SQLite at SQLitePath
	SQLitePath           string
	RedisURL             string
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		EmbeddingProvider:    "openai",
		EmbeddingAPIBase:     "https://api.openai.com/v1",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimensions:  1536,
		EmbeddingTimeout:     30 * time.Second,
		EmbeddingMaxInFlight: 4,
		EmbeddingRetry:       DefaultRetryConfig,
		BreakerFailures:      5,
		BreakerCooldown:      30 * time.Second,

		MaxTextChars:        8000,
		MaxDescriptionChars: 4000,
		MinTextChars:        10,

		SimilarityBatchSize:      500,
		SimilarityMinScore:       0.7,
		SimilarityTopN:           10,
		SimilarityRecomputeAfter: 7 * 24 * time.Hour,
		SimilarityRecomputeScan:  10 * time.Minute,
		MemoryPressureThreshold:  0.85,
		MemoryPressurePause:      500 * time.Millisecond,

		MatchTTL:          24 * time.Hour,
		MatchDefaultLimit: 10,
		MatchMaxLimit:     100,

		QueueWorkers:      2,
		QueuePollInterval: 2 * time.Second,
		QueueStaleAfter:   30 * time.Minute,

		SQLitePath:           "go_match.db",
		CacheTTL:             24 * time.Hour,
		CacheMaxEntries:      5000,
		CacheCleanupInterval: 5 * time.Minute,
	}
}
