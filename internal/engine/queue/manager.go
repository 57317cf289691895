// Package queue is the durable work queue for embedding and similarity tasks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

// Manager owns queue item state transitions. At most one pending or
// processing item exists per (entity, task type); the store enforces it.
type Manager struct {
	store   store.Store
	metrics *engine.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a Manager. metrics and logger may be nil.
func NewManager(st store.Store, metrics *engine.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: st, metrics: metrics, logger: logger, now: time.Now}
}

func validTask(t engine.TaskType) bool {
	return t == engine.TaskGenerateEmbedding || t == engine.TaskComputeSimilarity
}

// Enqueue returns the active item for (ref, task) if there is one; otherwise it
// creates a pending item. A new generate_embedding item also resets the
// entity's embedding status, error and retry count.
func (m *Manager) Enqueue(ctx context.Context, ref engine.EntityRef, task engine.TaskType, priority int, meta engine.QueueMetadata) (*engine.QueueItem, error) {
	if !validTask(task) {
		return nil, fmt.Errorf("queue: unknown task type %q", task)
	}
	if _, err := m.store.GetEmbedding(ctx, ref); err != nil {
		return nil, fmt.Errorf("queue: enqueue %s: %w", ref, err)
	}

	if existing, err := m.store.FindActiveQueueItem(ctx, ref, task); err == nil {
		m.metrics.Incr(engine.MetricQueueDeduplicated)
		m.logger.Debug("queue: item already active",
			slog.String("id", existing.ID), slog.String("entity", ref.String()), slog.String("task", string(task)))
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := m.now()
	item := &engine.QueueItem{
		ID:        uuid.NewString(),
		Kind:      ref.Kind,
		EntityID:  ref.ID,
		TaskType:  task,
		Status:    engine.QueuePending,
		Priority:  priority,
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.InsertQueueItem(ctx, item); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		// Lost a race with a concurrent enqueue.
		m.metrics.Incr(engine.MetricQueueDeduplicated)
		return m.store.FindActiveQueueItem(ctx, ref, task)
	}

	if task == engine.TaskGenerateEmbedding {
		if err := m.store.ResetEmbedding(ctx, ref); err != nil {
			return nil, err
		}
	}

	m.metrics.Incr(engine.MetricQueueEnqueued)
	m.logger.Info("queue: item enqueued",
		slog.String("id", item.ID),
		slog.String("entity", ref.String()),
		slog.String("task", string(task)),
		slog.Int("priority", priority))
	return item, nil
}

// DequeueNext claims the most urgent pending item (lowest priority value, then
// oldest). It returns nil, nil when the queue is empty.
func (m *Manager) DequeueNext(ctx context.Context) (*engine.QueueItem, error) {
	item, err := m.store.ClaimNextQueueItem(ctx, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.metrics.Incr(engine.MetricQueueClaimed)
	m.logger.Debug("queue: item claimed", slog.String("id", item.ID), slog.String("entity", item.Ref().String()))
	return item, nil
}

// MarkCompleted moves an active item to completed.
func (m *Manager) MarkCompleted(ctx context.Context, id string) (*engine.QueueItem, error) {
	item, err := m.store.FinishQueueItem(ctx, id, engine.QueueCompleted, "", m.now())
	if err != nil {
		return nil, err
	}
	m.metrics.Incr(engine.MetricQueueCompleted)
	return item, nil
}

// MarkFailed moves an active item to failed with a sanitized message. For
// embedding tasks the entity's embedding is marked failed and its retry
// counter incremented. Failed items are never re-enqueued automatically.
func (m *Manager) MarkFailed(ctx context.Context, id string, cause error) (*engine.QueueItem, error) {
	msg := engine.SanitizeError(cause)
	item, err := m.store.FinishQueueItem(ctx, id, engine.QueueFailed, msg, m.now())
	if err != nil {
		return nil, err
	}
	m.metrics.Incr(engine.MetricQueueFailed)

	if item.TaskType == engine.TaskGenerateEmbedding {
		if err := m.store.RecordEmbeddingFailure(ctx, item.Ref(), msg); err != nil {
			return item, err
		}
	}
	m.logger.Warn("queue: item failed",
		slog.String("id", item.ID),
		slog.String("entity", item.Ref().String()),
		slog.String("task", string(item.TaskType)),
		slog.String("error", msg))
	return item, nil
}

// RequeueStale fails items stuck in processing for longer than olderThan and
// enqueues a fresh item for each at the same priority. It returns the new items.
func (m *Manager) RequeueStale(ctx context.Context, olderThan time.Duration) ([]*engine.QueueItem, error) {
	now := m.now()
	stale, err := m.store.FailStaleQueueItems(ctx, now.Add(-olderThan), "stale: processing for more than "+olderThan.String(), now)
	if err != nil {
		return nil, err
	}
	fresh := make([]*engine.QueueItem, 0, len(stale))
	for _, old := range stale {
		m.metrics.Incr(engine.MetricQueueFailed)
		item, err := m.Enqueue(ctx, old.Ref(), old.TaskType, old.Priority, engine.QueueMetadata{
			Source:  "requeue-stale",
			Reason:  "replaces " + old.ID,
			TraceID: old.Metadata.TraceID,
		})
		if err != nil {
			m.logger.Warn("queue: requeue failed", slog.String("id", old.ID), slog.Any("error", err))
			continue
		}
		fresh = append(fresh, item)
	}
	if len(stale) > 0 {
		m.logger.Warn("queue: stale items requeued",
			slog.Int("stale", len(stale)), slog.Int("requeued", len(fresh)), slog.Duration("older_than", olderThan))
	}
	return fresh, nil
}

// Stats returns item counts grouped by task type and status.
func (m *Manager) Stats(ctx context.Context) ([]store.QueueCount, error) {
	return m.store.QueueStats(ctx)
}
