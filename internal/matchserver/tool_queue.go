package matchserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/matching"
	"github.com/anatolykoptev/go_match/internal/toolutil"
)

func parseEnqueue(input EnqueueInput) (engine.EntityKind, string, int, error) {
	kind, err := toolutil.NormKind(input.Kind)
	if err != nil {
		return "", "", 0, err
	}
	id, err := toolutil.NormID("entity_id", input.EntityID)
	if err != nil {
		return "", "", 0, err
	}
	priority, err := toolutil.NormPriority(input.Priority)
	if err != nil {
		return "", "", 0, err
	}
	return kind, id, priority, nil
}

func registerEnqueueEmbedding(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "enqueue_embedding",
		Description: "Queue (re)generation of the embedding for a job or candidate. Idempotent: if a pending or processing item already exists for the entity it is returned unchanged. A worker normalizes the entity text, calls the embedding provider and then queues a similarity recompute.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input EnqueueInput) (*mcp.CallToolResult, *engine.QueueItem, error) {
		kind, id, priority, err := parseEnqueue(input)
		if err != nil {
			return nil, nil, err
		}
		item, err := svc.EnqueueEmbeddingGeneration(ctx, kind, id, priority)
		if err != nil {
			return nil, nil, err
		}
		return nil, item, nil
	})
}

func registerEnqueueSimilarity(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "enqueue_similarity",
		Description: "Queue a recompute of the related list (top similar entities of the same kind) for a job or candidate. Idempotent per entity while an item is pending or processing.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input EnqueueInput) (*mcp.CallToolResult, *engine.QueueItem, error) {
		kind, id, priority, err := parseEnqueue(input)
		if err != nil {
			return nil, nil, err
		}
		item, err := svc.EnqueueSimilarityComputation(ctx, kind, id, priority)
		if err != nil {
			return nil, nil, err
		}
		return nil, item, nil
	})
}

func registerQueueStats(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "queue_stats",
		Description: "Work queue item counts grouped by task type and status, plus process counters (provider calls, retries, cache hits, similarity runs).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ QueueStatsInput) (*mcp.CallToolResult, QueueStatsOutput, error) {
		counts, err := svc.QueueStats(ctx)
		if err != nil {
			return nil, QueueStatsOutput{}, err
		}
		return nil, QueueStatsOutput{Counts: counts, Metrics: svc.Metrics().Snapshot()}, nil
	})
}

func registerRequeueStale(server *mcp.Server, svc *matching.Service, staleAfter time.Duration) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "requeue_stale",
		Description: "Recover queue items stuck in processing (e.g. after a worker crash). Each stale item is marked failed and a fresh pending item is queued for the same entity and task.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RequeueInput) (*mcp.CallToolResult, RequeueOutput, error) {
		olderThan, err := toolutil.NormDuration(input.OlderThan, staleAfter)
		if err != nil {
			return nil, RequeueOutput{}, err
		}
		items, err := svc.RequeueStale(ctx, olderThan)
		if err != nil {
			return nil, RequeueOutput{}, err
		}
		if items == nil {
			items = []*engine.QueueItem{}
		}
		return nil, RequeueOutput{Requeued: items}, nil
	})
}

func registerBackfill(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "backfill_embeddings",
		Description: "Queue embedding generation for every active entity without a completed embedding. Use after bulk imports or a provider outage.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input BackfillInput) (*mcp.CallToolResult, BackfillOutput, error) {
		var kinds []engine.EntityKind
		if input.Kind != "" {
			kind, err := toolutil.NormKind(input.Kind)
			if err != nil {
				return nil, BackfillOutput{}, err
			}
			kinds = append(kinds, kind)
		}
		n, err := svc.Backfill(ctx, kinds...)
		if err != nil {
			return nil, BackfillOutput{Enqueued: n}, err
		}
		return nil, BackfillOutput{Enqueued: n}, nil
	})
}
