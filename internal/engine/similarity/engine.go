package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

// ErrEmbeddingNotReady is returned when the source entity has no completed
// embedding. Callers can fall back to category and location matching.
var ErrEmbeddingNotReady = errors.New("embedding not ready")

// Config tunes a similarity run.
type Config struct {
	BatchSize      int
	MinScore       float64
	TopN           int
	RecomputeAfter time.Duration
	MemThreshold   float64
	MemPause       time.Duration
}

// ConfigFrom extracts the similarity settings from the engine config.
func ConfigFrom(c engine.Config) Config {
	return Config{
		BatchSize:      c.SimilarityBatchSize,
		MinScore:       c.SimilarityMinScore,
		TopN:           c.SimilarityTopN,
		RecomputeAfter: c.SimilarityRecomputeAfter,
		MemThreshold:   c.MemoryPressureThreshold,
		MemPause:       c.MemoryPressurePause,
	}
}

// Engine computes and persists related lists.
type Engine struct {
	store   store.Store
	cfg     Config
	gate    *memoryGate
	metrics *engine.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Engine. probe may be nil to disable the memory gate;
// metrics and logger may be nil.
func New(st store.Store, cfg Config, probe MemoryProbe, metrics *engine.Metrics, logger *slog.Logger) *Engine {
	def := ConfigFrom(engine.DefaultConfig())
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.RecomputeAfter <= 0 {
		cfg.RecomputeAfter = def.RecomputeAfter
	}
	if cfg.MemPause <= 0 {
		cfg.MemPause = def.MemPause
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store: st,
		cfg:   cfg,
		gate: &memoryGate{
			probe:     probe,
			threshold: cfg.MemThreshold,
			pause:     cfg.MemPause,
			sleep:     sleepCtx,
			metrics:   metrics,
			logger:    logger,
		},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// ComputeSimilarities scores ref against every other eligible entity of the
// same kind, keeps the top-N at or above the minimum score and stores them on
// ref. An empty corpus yields an empty list.
func (e *Engine) ComputeSimilarities(ctx context.Context, ref engine.EntityRef) ([]engine.SimilarityEdge, error) {
	var edges []engine.SimilarityEdge
	err := engine.TrackOperation(ctx, "similarity "+ref.String(), 30*time.Second, func(ctx context.Context) error {
		var err error
		edges, err = e.compute(ctx, ref)
		return err
	})
	return edges, err
}

func (e *Engine) compute(ctx context.Context, ref engine.EntityRef) ([]engine.SimilarityEdge, error) {
	src, err := e.store.GetEmbedding(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("similarity: %s: %w", ref, err)
	}
	if src.Status != engine.EmbeddingCompleted || len(src.Vector) == 0 {
		return nil, fmt.Errorf("similarity: %s: %w (status %s)", ref, ErrEmbeddingNotReady, src.Status)
	}

	corpusSize, err := e.store.CountCorpus(ctx, ref)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var (
		kept    []engine.SimilarityEdge
		skipped int
		afterID string
	)
	for {
		if err := e.gate.wait(ctx); err != nil {
			return nil, err
		}
		page, err := e.store.ListCorpusPage(ctx, ref, afterID, e.cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		for _, entry := range page {
			score, err := CosineSimilarity(src.Vector, entry.Vector)
			if err != nil {
				skipped++
				e.metrics.Incr(engine.MetricSimilaritySkipped)
				e.logger.Warn("similarity: skipping malformed vector",
					slog.String("entity", ref.String()),
					slog.String("target", entry.ID),
					slog.Any("error", err))
				continue
			}
			if finite(score) && score >= e.cfg.MinScore {
				kept = append(kept, engine.SimilarityEdge{TargetID: entry.ID, Score: score, ComputedAt: now})
			}
		}
		if len(page) < e.cfg.BatchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	edges := topN(kept, e.cfg.TopN)
	meta := engine.SimilarityMetadata{
		LastComputed:           now,
		NextComputeAt:          now.Add(e.cfg.RecomputeAfter),
		CorpusSizeWhenComputed: corpusSize,
	}
	if err := e.store.SaveSimilarities(ctx, ref, edges, meta); err != nil {
		return nil, err
	}

	e.metrics.Incr(engine.MetricSimilarityRuns)
	e.logger.Info("similarity: computed",
		slog.String("entity", ref.String()),
		slog.Int("corpus", corpusSize),
		slog.Int("above_threshold", len(kept)),
		slog.Int("kept", len(edges)),
		slog.Int("skipped", skipped))
	return edges, nil
}

// topN sorts by score descending, ties by target ID, and truncates to n.
func topN(edges []engine.SimilarityEdge, n int) []engine.SimilarityEdge {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	if len(edges) > n {
		edges = edges[:n]
	}
	if edges == nil {
		edges = []engine.SimilarityEdge{}
	}
	return edges
}
