// Package scoring ranks candidates against a job with a seven-part heuristic
// and caches the result per job for a fixed TTL.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

// Config controls match caching and limits.
type Config struct {
	TTL          time.Duration
	DefaultLimit int
	MaxLimit     int
}

// ConfigFrom extracts the scoring settings from the engine config.
func ConfigFrom(c engine.Config) Config {
	return Config{TTL: c.MatchTTL, DefaultLimit: c.MatchDefaultLimit, MaxLimit: c.MatchMaxLimit}
}

// Result is the outcome of FindTopCandidates.
type Result struct {
	Matches   []engine.CandidateMatch `json:"matches"`
	FromCache bool                    `json:"from_cache"`
}

// Scorer computes and caches candidate matches.
type Scorer struct {
	store   store.Store
	cfg     Config
	metrics *engine.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Scorer. metrics and logger may be nil.
func New(st store.Store, cfg Config, metrics *engine.Metrics, logger *slog.Logger) *Scorer {
	def := ConfigFrom(engine.DefaultConfig())
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{store: st, cfg: cfg, metrics: metrics, logger: logger, now: time.Now}
}

// ClampLimit applies the default and maximum result limits.
func (s *Scorer) ClampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// FindTopCandidates returns the best-scoring candidates for jobID. Cached
// matches are served when the unexpired rows cover limit, or cover the whole
// eligible pool of the run that wrote them; otherwise all eligible candidates
// are rescored and the cache for the job is replaced.
func (s *Scorer) FindTopCandidates(ctx context.Context, jobID string, limit int) (*Result, error) {
	limit = s.ClampLimit(limit)
	now := s.now()

	cached, err := s.store.ListMatches(ctx, jobID, now)
	if err != nil {
		return nil, err
	}
	if cacheCovers(cached, limit) {
		n := min(limit, len(cached))
		s.metrics.Incr(engine.MetricScoringCacheServed)
		s.logger.Debug("scoring: served from cache", slog.String("job", jobID), slog.Int("matches", n))
		return &Result{Matches: cached[:n], FromCache: true}, nil
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("scoring: job %s: %w", jobID, err)
	}
	candidates, err := s.store.ListActiveCandidates(ctx)
	if err != nil {
		return nil, err
	}

	eligible := 0
	for _, c := range candidates {
		if c.HasProfile() {
			eligible++
		}
	}
	matches := make([]engine.CandidateMatch, 0, eligible)
	for _, c := range candidates {
		if !c.HasProfile() {
			continue
		}
		b := Score(job, c)
		matches = append(matches, engine.CandidateMatch{
			ID:           uuid.NewString(),
			JobID:        jobID,
			CandidateID:  c.ID,
			MatchScore:   b.Total(),
			Breakdown:    b,
			CalculatedAt: now,
			ExpiresAt:    now.Add(s.cfg.TTL),
			PoolSize:     eligible,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchScore != matches[j].MatchScore {
			return matches[i].MatchScore > matches[j].MatchScore
		}
		return matches[i].CandidateID < matches[j].CandidateID
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	if err := s.store.ReplaceMatches(ctx, jobID, matches); err != nil {
		return nil, err
	}
	s.metrics.Incr(engine.MetricScoringRecomputes)
	s.logger.Info("scoring: matches recomputed",
		slog.String("job", jobID),
		slog.Int("eligible", eligible),
		slog.Int("kept", len(matches)))
	return &Result{Matches: matches, FromCache: false}, nil
}

// cacheCovers reports whether cached rows can answer a request for limit
// matches. A run over a pool smaller than its limit kept every eligible
// candidate, so its rows answer any limit up to the pool size.
func cacheCovers(cached []engine.CandidateMatch, limit int) bool {
	if len(cached) == 0 {
		return false
	}
	want := limit
	if pool := cached[0].PoolSize; pool > 0 && pool < want {
		want = pool
	}
	return len(cached) >= want
}
