// Package matchserver exposes the matching service as MCP tools.
package matchserver

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_match/internal/matching"
)

// Options holds tool defaults that come from configuration.
type Options struct {
	StaleAfter time.Duration
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 11

// RegisterTools registers every matching tool on the server.
func RegisterTools(server *mcp.Server, svc *matching.Service, opts Options) {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	registerEnqueueEmbedding(server, svc)
	registerEnqueueSimilarity(server, svc)
	registerQueueStats(server, svc)
	registerRequeueStale(server, svc, opts.StaleAfter)
	registerBackfill(server, svc)

	registerComputeSimilarities(server, svc)
	registerRelatedJobs(server, svc)
	registerCosineSimilarity(server)

	registerFindTopCandidates(server, svc)
	registerFallbackCandidates(server, svc)
	registerMarkContacted(server, svc)
}
