package matchserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/scoring"
	"github.com/anatolykoptev/go_match/internal/matching"
	"github.com/anatolykoptev/go_match/internal/toolutil"
)

func registerFindTopCandidates(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_top_candidates",
		Description: "Rank candidates for a job on a 0-100 scale: title (20), skills (25), experience (15), location (15), education (5), salary (10), availability (10). Results are cached per job for 24h; from_cache tells whether they were served from the cache.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, *scoring.Result, error) {
		id, err := toolutil.NormID("job_id", input.JobID)
		if err != nil {
			return nil, nil, err
		}
		res, err := svc.FindTopCandidates(ctx, id, input.Limit)
		if err != nil {
			return nil, nil, err
		}
		return nil, res, nil
	})
}

func registerFallbackCandidates(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "fallback_candidates",
		Description: "Active candidates in the same location as the job, newest first. Unscored; for use when semantic matching is unavailable.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input JobInput) (*mcp.CallToolResult, FallbackCandidatesOutput, error) {
		id, err := toolutil.NormID("job_id", input.JobID)
		if err != nil {
			return nil, FallbackCandidatesOutput{}, err
		}
		cs, err := svc.FallbackCandidates(ctx, id, input.Limit)
		if err != nil {
			return nil, FallbackCandidatesOutput{}, err
		}
		if cs == nil {
			cs = []*engine.Candidate{}
		}
		return nil, FallbackCandidatesOutput{JobID: id, Candidates: cs}, nil
	})
}

func registerMarkContacted(server *mcp.Server, svc *matching.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_candidate_contacted",
		Description: "Record that a matched candidate was contacted for a job. The match must exist (run find_top_candidates first).",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ContactInput) (*mcp.CallToolResult, *engine.CandidateMatch, error) {
		jobID, err := toolutil.NormID("job_id", input.JobID)
		if err != nil {
			return nil, nil, err
		}
		candidateID, err := toolutil.NormID("candidate_id", input.CandidateID)
		if err != nil {
			return nil, nil, err
		}
		m, err := svc.MarkContacted(ctx, jobID, candidateID, input.Method)
		if err != nil {
			return nil, nil, err
		}
		return nil, m, nil
	})
}
