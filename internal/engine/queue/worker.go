package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/embedding"
	"github.com/anatolykoptev/go_match/internal/engine/store"
	"github.com/anatolykoptev/go_match/internal/engine/textnorm"
)

// Embedder produces a vector for normalized text. *embedding.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}

// SimilarityComputer recomputes an entity's related list.
type SimilarityComputer interface {
	ComputeSimilarities(ctx context.Context, ref engine.EntityRef) ([]engine.SimilarityEdge, error)
}

// WorkerConfig sizes the worker pool.
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	ScanInterval time.Duration // due-recompute scan, 0 disables
	ScanBatch    int
}

// Worker drains the queue: generate_embedding items are normalized, embedded
// and persisted, then chained into compute_similarity items.
type Worker struct {
	cfg        WorkerConfig
	queue      *Manager
	store      store.Store
	norm       *textnorm.Normalizer
	embedder   Embedder
	similarity SimilarityComputer
	logger     *slog.Logger
	now        func() time.Time
}

// NewWorker wires a worker pool. logger may be nil.
func NewWorker(cfg WorkerConfig, q *Manager, st store.Store, norm *textnorm.Normalizer, emb Embedder, sim SimilarityComputer, logger *slog.Logger) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ScanBatch <= 0 {
		cfg.ScanBatch = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		cfg:        cfg,
		queue:      q,
		store:      st,
		norm:       norm,
		embedder:   emb,
		similarity: sim,
		logger:     logger,
		now:        time.Now,
	}
}

// Run starts the pool and blocks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range w.cfg.Workers {
		g.Go(func() error {
			w.loop(ctx, i)
			return nil
		})
	}
	if w.cfg.ScanInterval > 0 {
		g.Go(func() error {
			w.scanLoop(ctx)
			return nil
		})
	}
	w.logger.Info("queue: workers started", slog.Int("workers", w.cfg.Workers), slog.Duration("poll", w.cfg.PollInterval))
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			w.logger.Error("queue: worker error", slog.Int("worker", id), slog.Any("error", err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.EnqueueDue(ctx); err != nil {
				w.logger.Error("queue: due scan failed", slog.Any("error", err))
			}
		}
	}
}

// ProcessNext claims and runs one item. It reports false when the queue was empty.
// A task failure marks the item failed and is not returned as an error.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	item, err := w.queue.DequeueNext(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if item == nil {
		return false, nil
	}

	start := w.now()
	var taskErr error
	switch item.TaskType {
	case engine.TaskGenerateEmbedding:
		taskErr = w.generateEmbedding(ctx, item)
	case engine.TaskComputeSimilarity:
		_, taskErr = w.similarity.ComputeSimilarities(ctx, item.Ref())
	default:
		taskErr = fmt.Errorf("unknown task type %q", item.TaskType)
	}

	// Bookkeeping must land even when ctx was canceled mid-task.
	bg := context.WithoutCancel(ctx)
	if taskErr != nil {
		if _, err := w.queue.MarkFailed(bg, item.ID, taskErr); err != nil {
			return true, fmt.Errorf("mark failed %s: %w", item.ID, err)
		}
		return true, nil
	}
	if _, err := w.queue.MarkCompleted(bg, item.ID); err != nil {
		return true, fmt.Errorf("mark completed %s: %w", item.ID, err)
	}
	w.logger.Info("queue: item completed",
		slog.String("id", item.ID),
		slog.String("entity", item.Ref().String()),
		slog.String("task", string(item.TaskType)),
		slog.Duration("elapsed", w.now().Sub(start)))

	if item.TaskType == engine.TaskGenerateEmbedding {
		if _, err := w.queue.Enqueue(bg, item.Ref(), engine.TaskComputeSimilarity, item.Priority, engine.QueueMetadata{
			Source:  "worker",
			Reason:  "embedding generated",
			TraceID: item.Metadata.TraceID,
		}); err != nil {
			return true, fmt.Errorf("chain similarity %s: %w", item.Ref(), err)
		}
	}
	return true, nil
}

func (w *Worker) generateEmbedding(ctx context.Context, item *engine.QueueItem) error {
	ref := item.Ref()
	if err := w.store.SetEmbeddingStatus(ctx, ref, engine.EmbeddingProcessing); err != nil {
		return err
	}
	text, err := w.textFor(ctx, ref)
	if err != nil {
		return err
	}
	if !w.norm.Acceptable(text) {
		return fmt.Errorf("%w: %s normalized to %d chars", embedding.ErrTextTooShort, ref, engine.RuneLen(text))
	}
	res, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return w.store.SaveEmbedding(ctx, ref, res.Vector, res.Model, w.now())
}

func (w *Worker) textFor(ctx context.Context, ref engine.EntityRef) (string, error) {
	switch ref.Kind {
	case engine.KindJob:
		job, err := w.store.GetJob(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return w.norm.Job(job), nil
	case engine.KindCandidate:
		c, err := w.store.GetCandidate(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		return w.norm.Candidate(c), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", ref.Kind)
}

// EnqueueDue enqueues compute_similarity for entities whose recompute horizon
// has passed. It returns the number of items enqueued or already active.
func (w *Worker) EnqueueDue(ctx context.Context) (int, error) {
	total := 0
	for _, kind := range []engine.EntityKind{engine.KindJob, engine.KindCandidate} {
		ids, err := w.store.ListDueForRecompute(ctx, kind, w.now(), w.cfg.ScanBatch)
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			ref := engine.EntityRef{Kind: kind, ID: id}
			if _, err := w.queue.Enqueue(ctx, ref, engine.TaskComputeSimilarity, DuePriority, engine.QueueMetadata{
				Source: "scan",
				Reason: "recompute horizon passed",
			}); err != nil {
				w.logger.Warn("queue: due enqueue failed", slog.String("entity", ref.String()), slog.Any("error", err))
				continue
			}
			total++
		}
	}
	if total > 0 {
		w.logger.Info("queue: due recomputes enqueued", slog.Int("count", total))
	}
	return total, nil
}

// Priorities used by internal producers. Lower is more urgent.
const (
	DefaultPriority  = 5
	BackfillPriority = 8
	DuePriority      = 10
)
