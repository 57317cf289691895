// Package matching is the entry point to the matching engine. Service wires the
// work queue, similarity engine and candidate scorer behind one API.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/queue"
	"github.com/anatolykoptev/go_match/internal/engine/scoring"
	"github.com/anatolykoptev/go_match/internal/engine/similarity"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

// Service exposes the matching operations. It holds no state of its own.
type Service struct {
	store   store.Store
	queue   *queue.Manager
	sim     *similarity.Engine
	scorer  *scoring.Scorer
	metrics *engine.Metrics
	logger  *slog.Logger
}

// NewService wires a Service. metrics and logger may be nil.
func NewService(st store.Store, q *queue.Manager, sim *similarity.Engine, scorer *scoring.Scorer, metrics *engine.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, queue: q, sim: sim, scorer: scorer, metrics: metrics, logger: logger}
}

// Store returns the backing store.
func (s *Service) Store() store.Store { return s.store }

// Metrics returns the shared counters.
func (s *Service) Metrics() *engine.Metrics { return s.metrics }

func ref(kind engine.EntityKind, id string) (engine.EntityRef, error) {
	if kind != engine.KindJob && kind != engine.KindCandidate {
		return engine.EntityRef{}, fmt.Errorf("unknown entity kind %q", kind)
	}
	if id == "" {
		return engine.EntityRef{}, fmt.Errorf("entity id is required")
	}
	return engine.EntityRef{Kind: kind, ID: id}, nil
}

// EnqueueEmbeddingGeneration schedules (re)embedding of an entity. An active
// item for the same entity is returned instead of creating another.
func (s *Service) EnqueueEmbeddingGeneration(ctx context.Context, kind engine.EntityKind, id string, priority int) (*engine.QueueItem, error) {
	r, err := ref(kind, id)
	if err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, r, engine.TaskGenerateEmbedding, priority, engine.QueueMetadata{Source: "api", Reason: "entity changed"})
}

// EnqueueSimilarityComputation schedules a related-list recompute.
func (s *Service) EnqueueSimilarityComputation(ctx context.Context, kind engine.EntityKind, id string, priority int) (*engine.QueueItem, error) {
	r, err := ref(kind, id)
	if err != nil {
		return nil, err
	}
	return s.queue.Enqueue(ctx, r, engine.TaskComputeSimilarity, priority, engine.QueueMetadata{Source: "api", Reason: "requested"})
}

// ComputeSimilarities recomputes the related list synchronously.
func (s *Service) ComputeSimilarities(ctx context.Context, kind engine.EntityKind, id string) ([]engine.SimilarityEdge, error) {
	r, err := ref(kind, id)
	if err != nil {
		return nil, err
	}
	return s.sim.ComputeSimilarities(ctx, r)
}

// FindTopCandidates ranks candidates for a job, cache first.
func (s *Service) FindTopCandidates(ctx context.Context, jobID string, limit int) (*scoring.Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	return s.scorer.FindTopCandidates(ctx, jobID, limit)
}

// MarkContacted records outreach on a cached match.
func (s *Service) MarkContacted(ctx context.Context, jobID, candidateID, method string) (*engine.CandidateMatch, error) {
	if jobID == "" || candidateID == "" {
		return nil, fmt.Errorf("job id and candidate id are required")
	}
	if method == "" {
		method = "unspecified"
	}
	m, err := s.store.MarkContacted(ctx, jobID, candidateID, method, time.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("matching: candidate contacted",
		slog.String("job", jobID), slog.String("candidate", candidateID), slog.String("method", method))
	return m, nil
}

// QueueStats reports item counts by task type and status.
func (s *Service) QueueStats(ctx context.Context) ([]store.QueueCount, error) {
	return s.queue.Stats(ctx)
}

// QueueGauges reports queue item counts keyed queue_items_<task>_<status>,
// for the metrics endpoint. A failed read is logged and reports nothing.
func (s *Service) QueueGauges() map[string]int64 {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := s.QueueStats(ctx)
	if err != nil {
		s.logger.Warn("matching: queue gauges failed", slog.Any("error", err))
		return nil
	}
	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[fmt.Sprintf("queue_items_%s_%s", c.TaskType, c.Status)] = int64(c.Count)
	}
	return out
}

// RequeueStale recovers items stuck in processing for longer than olderThan.
func (s *Service) RequeueStale(ctx context.Context, olderThan time.Duration) ([]*engine.QueueItem, error) {
	if olderThan <= 0 {
		return nil, fmt.Errorf("older-than must be positive, got %s", olderThan)
	}
	return s.queue.RequeueStale(ctx, olderThan)
}

// Backfill enqueues generate_embedding for every eligible entity without a
// completed embedding. An empty kinds list means both kinds.
func (s *Service) Backfill(ctx context.Context, kinds ...engine.EntityKind) (int, error) {
	if len(kinds) == 0 {
		kinds = []engine.EntityKind{engine.KindJob, engine.KindCandidate}
	}
	total := 0
	for _, kind := range kinds {
		ids, err := s.store.ListMissingEmbeddings(ctx, kind)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if _, err := s.queue.Enqueue(ctx, engine.EntityRef{Kind: kind, ID: id}, engine.TaskGenerateEmbedding,
				queue.BackfillPriority, engine.QueueMetadata{Source: "backfill", Reason: "missing embedding"}); err != nil {
				return total, err
			}
			total++
		}
		s.logger.Info("matching: backfill enqueued", slog.String("kind", string(kind)), slog.Int("count", len(ids)))
	}
	return total, nil
}
