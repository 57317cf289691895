package similarity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

func newTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "sim.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// unitAt returns a 2-d unit vector whose cosine against (1, 0) is score.
func unitAt(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

func seed(t *testing.T, st store.Store, id string, vec []float32) engine.EntityRef {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertJob(ctx, &engine.Job{ID: id, Title: "Job " + id, Active: true}))
	ref := engine.EntityRef{Kind: engine.KindJob, ID: id}
	if vec != nil {
		require.NoError(t, st.SaveEmbedding(ctx, ref, vec, "test", time.Now()))
	}
	return ref
}

func testConfig() Config {
	return Config{BatchSize: 2, MinScore: 0.7, TopN: 10, RecomputeAfter: time.Hour}
}

func TestComputeSimilaritiesThreshold(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "src", []float32{1, 0})
	seed(t, st, "a", unitAt(0.95))
	seed(t, st, "b", unitAt(0.8))
	seed(t, st, "c", unitAt(0.71))
	seed(t, st, "d", unitAt(0.5))
	seed(t, st, "e", unitAt(0.1))

	metrics := engine.NewMetrics(nil)
	e := New(st, testConfig(), nil, metrics, nil)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	edges, err := e.ComputeSimilarities(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{edges[0].TargetID, edges[1].TargetID, edges[2].TargetID})
	for _, edge := range edges {
		assert.NotEqual(t, src.ID, edge.TargetID)
		assert.GreaterOrEqual(t, edge.Score, 0.7)
		assert.LessOrEqual(t, edge.Score, 1.0)
	}

	job, err := st.GetJob(context.Background(), src.ID)
	require.NoError(t, err)
	require.Len(t, job.Similar, 3)
	assert.Equal(t, "a", job.Similar[0].TargetID)
	assert.Equal(t, 5, job.SimilarityMeta.CorpusSizeWhenComputed)
	assert.True(t, job.SimilarityMeta.NextComputeAt.Equal(fixed.Add(time.Hour)))
	assert.Equal(t, int64(1), metrics.Get(engine.MetricSimilarityRuns))
}

func TestComputeSimilaritiesTopN(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "src", []float32{1, 0})
	for i := range 7 {
		seed(t, st, fmt.Sprintf("j%d", i), unitAt(0.9+float64(i)/100))
	}
	cfg := testConfig()
	cfg.TopN = 3
	edges, err := New(st, cfg, nil, nil, nil).ComputeSimilarities(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, "j6", edges[0].TargetID)
	assert.Equal(t, "j4", edges[2].TargetID)
	assert.True(t, edges[0].Score >= edges[1].Score && edges[1].Score >= edges[2].Score)
}

func TestComputeSimilaritiesEmptyCorpus(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "alone", []float32{1, 0})
	seed(t, st, "no-embedding", nil)

	edges, err := New(st, testConfig(), nil, nil, nil).ComputeSimilarities(context.Background(), src)
	require.NoError(t, err)
	assert.NotNil(t, edges)
	assert.Empty(t, edges)
}

func TestComputeSimilaritiesNotReady(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "src", nil)

	_, err := New(st, testConfig(), nil, nil, nil).ComputeSimilarities(context.Background(), src)
	assert.True(t, errors.Is(err, ErrEmbeddingNotReady), "got %v", err)

	_, err = New(st, testConfig(), nil, nil, nil).ComputeSimilarities(context.Background(),
		engine.EntityRef{Kind: engine.KindJob, ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestComputeSimilaritiesSkipsMalformed(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "src", []float32{1, 0})
	seed(t, st, "good", unitAt(0.9))
	seed(t, st, "wrong-dims", []float32{1, 0, 0})

	metrics := engine.NewMetrics(nil)
	edges, err := New(st, testConfig(), nil, metrics, nil).ComputeSimilarities(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "good", edges[0].TargetID)
	assert.Equal(t, int64(1), metrics.Get(engine.MetricSimilaritySkipped))
}

func TestMemoryGatePauses(t *testing.T) {
	st := newTestStore(t)
	src := seed(t, st, "src", []float32{1, 0})
	seed(t, st, "a", unitAt(0.9))

	// Over the threshold for the first two probes, then fine.
	probes := 0
	probe := func() (uint64, uint64) {
		probes++
		if probes <= 2 {
			return 95, 100
		}
		return 10, 100
	}
	cfg := testConfig()
	cfg.MemThreshold = 0.85
	metrics := engine.NewMetrics(nil)
	e := New(st, cfg, probe, metrics, nil)
	var slept []time.Duration
	e.gate.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	edges, err := e.ComputeSimilarities(context.Background(), src)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
	assert.Len(t, slept, 2)
	assert.Equal(t, int64(2), metrics.Get(engine.MetricMemoryPauses))
}

func TestMemoryGateBounded(t *testing.T) {
	g := &memoryGate{
		probe:     func() (uint64, uint64) { return 99, 100 },
		threshold: 0.5,
		pause:     time.Millisecond,
		sleep:     func(context.Context, time.Duration) error { return nil },
		logger:    slog.New(slog.DiscardHandler),
	}
	require.NoError(t, g.wait(context.Background()))

	g.sleep = sleepCtx
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.wait(ctx), context.Canceled)
}

func TestMemoryGateDisabled(t *testing.T) {
	g := &memoryGate{probe: func() (uint64, uint64) { return 99, 0 }, threshold: 0.5}
	_, high := g.pressure()
	assert.False(t, high)
}

func TestRuntimeProbeDefaultLimit(t *testing.T) {
	inUse, limit := RuntimeProbe(0)()
	require.NotZero(t, limit)
	assert.LessOrEqual(t, inUse, limit)

	// With no configured limit the gate still engages.
	g := &memoryGate{probe: RuntimeProbe(0), threshold: 1e-9}
	ratio, high := g.pressure()
	assert.True(t, high)
	assert.Greater(t, ratio, 0.0)

	_, explicit := RuntimeProbe(1 << 40)()
	assert.Equal(t, uint64(1<<40), explicit)
}
