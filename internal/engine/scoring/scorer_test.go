package scoring

import (
	"context"
	"fmt"
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
	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "scoring.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedCandidates(t *testing.T, st store.Store, n int) {
	t.Helper()
	for i := range n {
		require.NoError(t, st.UpsertCandidate(context.Background(), &engine.Candidate{
			ID:           fmt.Sprintf("c%d", i),
			DesiredTitle: "Go Developer",
			Skills:       []string{"Go", "Docker"}[:1+i%2],
			Experience:   []string{"junior", "mid", "senior"}[i%3],
			Location:     "Berlin",
			Active:       true,
		}))
	}
}

func TestFindTopCandidatesCacheAndTTL(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertJob(ctx, &engine.Job{
		ID: "j1", Title: "Go Developer", Requirements: "Go and Docker", Seniority: "senior", Location: "Berlin", Active: true,
	}))
	seedCandidates(t, st, 7)

	metrics := engine.NewMetrics(nil)
	s := New(st, Config{TTL: time.Hour}, metrics, nil)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	first, err := s.FindTopCandidates(ctx, "j1", 5)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Matches, 5)
	for i := 1; i < len(first.Matches); i++ {
		assert.GreaterOrEqual(t, first.Matches[i-1].MatchScore, first.Matches[i].MatchScore)
	}

	now = now.Add(30 * time.Minute)
	second, err := s.FindTopCandidates(ctx, "j1", 5)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	require.Len(t, second.Matches, 5)
	for i := range first.Matches {
		assert.Equal(t, first.Matches[i].CandidateID, second.Matches[i].CandidateID)
		assert.Equal(t, first.Matches[i].MatchScore, second.Matches[i].MatchScore)
		assert.Equal(t, first.Matches[i].Breakdown, second.Matches[i].Breakdown)
	}

	// A larger limit than the cached set forces a recompute.
	more, err := s.FindTopCandidates(ctx, "j1", 6)
	require.NoError(t, err)
	assert.False(t, more.FromCache)
	assert.Len(t, more.Matches, 6)

	now = now.Add(2 * time.Hour)
	expired, err := s.FindTopCandidates(ctx, "j1", 5)
	require.NoError(t, err)
	assert.False(t, expired.FromCache)

	assert.Equal(t, int64(3), metrics.Get(engine.MetricScoringRecomputes))
	assert.Equal(t, int64(1), metrics.Get(engine.MetricScoringCacheServed))
}

func TestFindTopCandidatesSmallPool(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertJob(ctx, &engine.Job{
		ID: "j1", Title: "Go Developer", Requirements: "Go and Docker", Location: "Berlin", Active: true,
	}))
	seedCandidates(t, st, 3)

	metrics := engine.NewMetrics(nil)
	s := New(st, Config{TTL: time.Hour}, metrics, nil)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	first, err := s.FindTopCandidates(ctx, "j1", 5)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	require.Len(t, first.Matches, 3)
	assert.Equal(t, 3, first.Matches[0].PoolSize)

	_, err = st.MarkContacted(ctx, "j1", "c1", "email", now)
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	second, err := s.FindTopCandidates(ctx, "j1", 5)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	require.Len(t, second.Matches, 3)
	contacted := 0
	for _, m := range second.Matches {
		if m.Contacted {
			contacted++
			assert.Equal(t, "c1", m.CandidateID)
		}
	}
	assert.Equal(t, 1, contacted)

	fewer, err := s.FindTopCandidates(ctx, "j1", 2)
	require.NoError(t, err)
	assert.True(t, fewer.FromCache)
	assert.Len(t, fewer.Matches, 2)

	assert.Equal(t, int64(1), metrics.Get(engine.MetricScoringRecomputes))
	assert.Equal(t, int64(2), metrics.Get(engine.MetricScoringCacheServed))
}

func TestFindTopCandidatesTitleDifference(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := engine.Job{Requirements: "React, TypeScript", Location: "Remote", Seniority: "mid", Active: true}
	react, backend := base, base
	react.ID, react.Title = "react", "React Developer"
	backend.ID, backend.Title = "backend", "Senior Backend Engineer"
	require.NoError(t, st.UpsertJob(ctx, &react))
	require.NoError(t, st.UpsertJob(ctx, &backend))
	require.NoError(t, st.UpsertCandidate(ctx, &engine.Candidate{
		ID: "c1", DesiredTitle: "React Developer", Skills: []string{"React"}, Experience: "mid", Active: true,
	}))

	s := New(st, Config{}, nil, nil)
	a, err := s.FindTopCandidates(ctx, "react", 1)
	require.NoError(t, err)
	b, err := s.FindTopCandidates(ctx, "backend", 1)
	require.NoError(t, err)
	require.Len(t, a.Matches, 1)
	require.Len(t, b.Matches, 1)

	assert.Equal(t, 20.0, a.Matches[0].Breakdown.Title)
	assert.Equal(t, 0.0, b.Matches[0].Breakdown.Title)
	assert.InDelta(t, 20.0, a.Matches[0].MatchScore-b.Matches[0].MatchScore, 1e-9)
}

func TestFindTopCandidatesEligibility(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertJob(ctx, &engine.Job{ID: "j1", Title: "Designer", Active: true}))
	for _, c := range []*engine.Candidate{
		{ID: "ok", Title: "Designer", Active: true},
		{ID: "no-profile", Active: true},
		{ID: "inactive", Title: "Designer", Active: false},
		{ID: "deleted", Title: "Designer", Active: true, Deleted: true},
	} {
		require.NoError(t, st.UpsertCandidate(ctx, c))
	}

	res, err := New(st, Config{}, nil, nil).FindTopCandidates(ctx, "j1", 10)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "ok", res.Matches[0].CandidateID)
	assert.Equal(t, res.Matches[0].Breakdown.Total(), res.Matches[0].MatchScore)
}

func TestFindTopCandidatesNoCandidates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.UpsertJob(ctx, &engine.Job{ID: "j1", Title: "Designer", Active: true}))

	res, err := New(st, Config{}, nil, nil).FindTopCandidates(ctx, "j1", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.False(t, res.FromCache)

	_, err = New(st, Config{}, nil, nil).FindTopCandidates(ctx, "missing", 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClampLimit(t *testing.T) {
	s := New(nil, Config{DefaultLimit: 10, MaxLimit: 50}, nil, nil)
	assert.Equal(t, 10, s.ClampLimit(0))
	assert.Equal(t, 10, s.ClampLimit(-3))
	assert.Equal(t, 7, s.ClampLimit(7))
	assert.Equal(t, 50, s.ClampLimit(500))
}
