package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// FallbackJobs returns active jobs sharing the job's category (and location,
// when set). There is no score; results are newest first.
func (s *Service) FallbackJobs(ctx context.Context, jobID string, limit int) ([]*engine.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Category == "" {
		return []*engine.Job{}, nil
	}
	return s.store.ListJobsByCategoryLocation(ctx, job.Category, job.Location, job.ID, s.scorer.ClampLimit(limit))
}

// FallbackCandidates returns active candidates in the job's location.
func (s *Service) FallbackCandidates(ctx context.Context, jobID string, limit int) ([]*engine.Candidate, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Location == "" {
		return []*engine.Candidate{}, nil
	}
	return s.store.ListCandidatesByLocation(ctx, job.Location, s.scorer.ClampLimit(limit))
}

// RelatedJobs is the related list for a job, either semantic or fallback.
type RelatedJobs struct {
	Semantic     bool                    `json:"semantic"`
	Similar      []engine.SimilarityEdge `json:"similar,omitempty"`
	LastComputed *time.Time              `json:"last_computed,omitempty"`
	Fallback     []*engine.Job           `json:"fallback,omitempty"`
}

// RelatedJobs reads the stored semantic related list when the job has a
// completed embedding and a finished similarity run, and falls back to
// category and location matching otherwise. It never computes similarities;
// that is left to the queue.
func (s *Service) RelatedJobs(ctx context.Context, jobID string, limit int) (*RelatedJobs, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	limit = s.scorer.ClampLimit(limit)
	if job.Embedding.Status == engine.EmbeddingCompleted && !job.SimilarityMeta.LastComputed.IsZero() {
		edges := job.Similar
		if len(edges) > limit {
			edges = edges[:limit]
		}
		computed := job.SimilarityMeta.LastComputed
		return &RelatedJobs{Semantic: true, Similar: edges, LastComputed: &computed}, nil
	}
	s.logger.Debug("matching: no similarity results, using fallback",
		slog.String("job", jobID), slog.String("embedding", string(job.Embedding.Status)))
	jobs, err := s.FallbackJobs(ctx, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return &RelatedJobs{Fallback: jobs}, nil
}
