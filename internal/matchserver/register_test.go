package matchserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/queue"
	"github.com/anatolykoptev/go_match/internal/engine/scoring"
	"github.com/anatolykoptev/go_match/internal/engine/similarity"
	"github.com/anatolykoptev/go_match/internal/engine/store"
	"github.com/anatolykoptev/go_match/internal/matching"
)

func newSession(t *testing.T) (*mcp.ClientSession, store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := engine.DefaultConfig()
	metrics := engine.NewMetrics(nil)
	svc := matching.NewService(st,
		queue.NewManager(st, metrics, nil),
		similarity.New(st, similarity.ConfigFrom(cfg), nil, metrics, nil),
		scoring.New(st, scoring.ConfigFrom(cfg), metrics, nil),
		metrics, nil)

	server := mcp.NewServer(&mcp.Implementation{Name: "go_match", Version: "test"}, nil)
	RegisterTools(server, svc, Options{})

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs, st
}

func call[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (T, *mcp.CallToolResult) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	var out T
	if !res.IsError && res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return out, res
}

func TestRegisterToolsListsAll(t *testing.T) {
	cs, _ := newSession(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, res.Tools, ToolCount)

	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"enqueue_embedding", "compute_similarities", "find_top_candidates", "cosine_similarity", "queue_stats"} {
		assert.True(t, names[want], want)
	}
}

func TestCosineSimilarityTool(t *testing.T) {
	cs, _ := newSession(t)
	out, res := call[CosineOutput](t, cs, "cosine_similarity", map[string]any{"a": []float32{1, 0}, "b": []float32{1, 0}})
	require.False(t, res.IsError)
	assert.InDelta(t, 1.0, out.Score, 1e-9)
	assert.Equal(t, 2, out.Dimensions)

	_, res = call[CosineOutput](t, cs, "cosine_similarity", map[string]any{"a": []float32{1, 0, 0}, "b": []float32{1, 0}})
	assert.True(t, res.IsError)
}

func TestEnqueueAndStatsTools(t *testing.T) {
	cs, st := newSession(t)
	require.NoError(t, st.UpsertCandidate(context.Background(), &engine.Candidate{ID: "c1", Title: "Dev", Active: true}))

	first, res := call[engine.QueueItem](t, cs, "enqueue_embedding", map[string]any{"kind": "candidate", "entity_id": "c1"})
	require.False(t, res.IsError)
	assert.Equal(t, queue.DefaultPriority, first.Priority)
	second, _ := call[engine.QueueItem](t, cs, "enqueue_embedding", map[string]any{"kind": "candidate", "entity_id": "c1"})
	assert.Equal(t, first.ID, second.ID)

	_, res = call[engine.QueueItem](t, cs, "enqueue_embedding", map[string]any{"entity_id": " "})
	assert.True(t, res.IsError)

	stats, res := call[QueueStatsOutput](t, cs, "queue_stats", map[string]any{})
	require.False(t, res.IsError)
	require.Len(t, stats.Counts, 1)
	assert.Equal(t, engine.TaskGenerateEmbedding, stats.Counts[0].TaskType)
	assert.Equal(t, 1, stats.Counts[0].Count)

	urgent, res := call[engine.QueueItem](t, cs, "enqueue_similarity", map[string]any{"kind": "candidate", "entity_id": "c1", "priority": 0})
	require.False(t, res.IsError)
	assert.Equal(t, 0, urgent.Priority)
	assert.Equal(t, engine.TaskComputeSimilarity, urgent.TaskType)

	_, res = call[engine.QueueItem](t, cs, "enqueue_similarity", map[string]any{"kind": "candidate", "entity_id": "c1", "priority": -1})
	assert.True(t, res.IsError)
}
