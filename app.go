package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/embedding"
	"github.com/anatolykoptev/go_match/internal/engine/queue"
	"github.com/anatolykoptev/go_match/internal/engine/scoring"
	"github.com/anatolykoptev/go_match/internal/engine/similarity"
	"github.com/anatolykoptev/go_match/internal/engine/store"
	"github.com/anatolykoptev/go_match/internal/engine/textnorm"
	"github.com/anatolykoptev/go_match/internal/matching"
)

// app holds the process-wide services. Everything is built once here and
// passed down; nothing below main keeps package-level state.
type app struct {
	cfg     engine.Config
	logger  *slog.Logger
	store   store.Store
	cache   *engine.Cache
	metrics *engine.Metrics
	queue   *queue.Manager
	sim     *similarity.Engine
	svc     *matching.Service
}

func newApp(ctx context.Context, cfg engine.Config, logger *slog.Logger) (*app, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	cache := engine.NewCache(cfg.RedisURL, cfg.CacheTTL, cfg.CacheMaxEntries, cfg.CacheCleanupInterval)
	metrics := engine.NewMetrics(cache)

	q := queue.NewManager(st, metrics, logger)
	sim := similarity.New(st, similarity.ConfigFrom(cfg), similarity.RuntimeProbe(cfg.MemoryLimitBytes), metrics, logger)
	scorer := scoring.New(st, scoring.ConfigFrom(cfg), metrics, logger)
	svc := matching.NewService(st, q, sim, scorer, metrics, logger)
	metrics.SetGauges(svc.QueueGauges)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		cache:   cache,
		metrics: metrics,
		queue:   q,
		sim:     sim,
		svc:     svc,
	}, nil
}

func openStore(ctx context.Context, cfg engine.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pg, nil
	}
	lite, err := store.OpenSQLite(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return lite, nil
}

// newProvider builds the configured embedding provider.
func newProvider(ctx context.Context, cfg engine.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "gemini":
		return embedding.NewGeminiProvider(ctx, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		return embedding.NewOpenAIProvider(embedding.OpenAIConfig{
			BaseURL:    cfg.EmbeddingAPIBase,
			APIKey:     cfg.EmbeddingAPIKey,
			Model:      cfg.EmbeddingModel,
			Dimensions: cfg.EmbeddingDimensions,
		})
	}
}

// newWorker wires the queue worker with the shared embedding client.
func (a *app) newWorker(ctx context.Context) (*queue.Worker, error) {
	provider, err := newProvider(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	client := embedding.NewClient(provider, embedding.ConfigFrom(a.cfg), a.cache, a.metrics, a.logger)
	norm := textnorm.New(textnorm.Options{
		MaxChars:            a.cfg.MaxTextChars,
		MaxDescriptionChars: a.cfg.MaxDescriptionChars,
		MinChars:            a.cfg.MinTextChars,
	}, a.logger)
	a.logger.Info("embedding client ready",
		slog.String("provider", a.cfg.EmbeddingProvider),
		slog.String("model", client.Model()),
		slog.Int("dimensions", client.Dimensions()))

	return queue.NewWorker(queue.WorkerConfig{
		Workers:      a.cfg.QueueWorkers,
		PollInterval: a.cfg.QueuePollInterval,
		ScanInterval: a.cfg.SimilarityRecomputeScan,
	}, a.queue, a.store, norm, client, a.sim, a.logger), nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", slog.Any("error", err))
	}
	_ = a.cache.Close()
}
