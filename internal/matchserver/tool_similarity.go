package matchserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/similarity"
	"github.com/anatolykoptev/go_match/internal/matching"
	"github.com/anatolykoptev/go_match/internal/toolutil"
)

func registerComputeSimilarities(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "compute_similarities",
		Description: "Synchronously recompute the related list for a job or candidate: cosine similarity against every other entity of the same kind with a completed embedding, keeping the top matches above the minimum score. Fails if the entity has no completed embedding yet.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input EntityInput) (*mcp.CallToolResult, SimilaritiesOutput, error) {
		kind, err := toolutil.NormKind(input.Kind)
		if err != nil {
			return nil, SimilaritiesOutput{}, err
		}
		id, err := toolutil.NormID("entity_id", input.EntityID)
		if err != nil {
			return nil, SimilaritiesOutput{}, err
		}
		edges, err := svc.ComputeSimilarities(ctx, kind, id)
		if err != nil {
			return nil, SimilaritiesOutput{}, err
		}
		return nil, SimilaritiesOutput{Entity: engine.EntityRef{Kind: kind, ID: id}, Edges: edges}, nil
	})
}

func registerRelatedJobs(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "related_jobs",
		Description: "Jobs related to a job. Returns the stored semantic related list when the job has a completed embedding and a finished similarity run (semantic=true, similar holds scored edges, last_computed its age); otherwise falls back to jobs in the same category and location (fallback, unscored). Does not recompute; use enqueue_similarity for that.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, *matching.RelatedJobs, error) {
		id, err := toolutil.NormID("job_id", input.JobID)
		if err != nil {
			return nil, nil, err
		}
		rel, err := svc.RelatedJobs(ctx, id, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, rel, nil
	})
}

func registerCosineSimilarity(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cosine_similarity",
		Description: "Cosine similarity of two equal-length vectors, clamped to [0, 1]. Errors on dimension mismatch, empty vectors or NaN/Inf values. Useful for diagnosing embeddings.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(_ context.Context, _ *mcp.CallToolRequest, input CosineInput) (*mcp.CallToolResult, CosineOutput, error) {
		score, err := similarity.CosineSimilarity(input.A, input.B)
		if err != nil {
			return nil, CosineOutput{}, err
		}
		return nil, CosineOutput{Score: score, Dimensions: len(input.A)}, nil
	})
}
