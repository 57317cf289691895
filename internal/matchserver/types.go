package matchserver

import (
	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/store"
)

// EnqueueInput is shared by enqueue_embedding and enqueue_similarity.
type EnqueueInput struct {
	Kind     string `json:"kind,omitempty" jsonschema:"Entity kind: job (default) or candidate"`
	EntityID string `json:"entity_id" jsonschema:"ID of the job or candidate"`
	Priority *int   `json:"priority,omitempty" jsonschema:"Queue priority, 0 or more, lower is more urgent (default 5)"`
	TraceID  string `json:"trace_id,omitempty" jsonschema:"Optional trace ID stored with the queue item"`
}

// EntityInput identifies one entity.
type EntityInput struct {
	Kind     string `json:"kind,omitempty" jsonschema:"Entity kind: job (default) or candidate"`
	EntityID string `json:"entity_id" jsonschema:"ID of the job or candidate"`
}

// SimilaritiesOutput is the recomputed related list.
type SimilaritiesOutput struct {
	Entity engine.EntityRef        `json:"entity"`
	Edges  []engine.SimilarityEdge `json:"edges"`
}

// JobInput selects a job and a result limit.
type JobInput struct {
	JobID string `json:"job_id" jsonschema:"ID of the job"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 10, max 100)"`
}

// CosineInput carries two raw vectors.
type CosineInput struct {
	A []float32 `json:"a" jsonschema:"First vector"`
	B []float32 `json:"b" jsonschema:"Second vector, same length as a"`
}

// CosineOutput is a similarity score in [0, 1].
type CosineOutput struct {
	Score      float64 `json:"score"`
	Dimensions int     `json:"dimensions"`
}

// FallbackCandidatesOutput lists candidates matched by location only.
type FallbackCandidatesOutput struct {
	JobID      string              `json:"job_id"`
	Candidates []*engine.Candidate `json:"candidates"`
}

// ContactInput records outreach to a matched candidate.
type ContactInput struct {
	JobID       string `json:"job_id" jsonschema:"ID of the job"`
	CandidateID string `json:"candidate_id" jsonschema:"ID of the matched candidate"`
	Method      string `json:"method,omitempty" jsonschema:"Contact method, e.g. email, phone, linkedin"`
}

// QueueStatsInput is empty; queue_stats takes no arguments.
type QueueStatsInput struct{}

// QueueStatsOutput groups item counts and the process counters.
type QueueStatsOutput struct {
	Counts  []store.QueueCount `json:"counts"`
	Metrics map[string]int64   `json:"metrics,omitempty"`
}

// RequeueInput configures requeue_stale.
type RequeueInput struct {
	OlderThan string `json:"older_than,omitempty" jsonschema:"Go duration; processing items older than this are requeued (default QUEUE_STALE_AFTER)"`
}

// RequeueOutput lists the replacement items.
type RequeueOutput struct {
	Requeued []*engine.QueueItem `json:"requeued"`
}

// BackfillInput optionally restricts backfill to one kind.
type BackfillInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"job, candidate, or empty for both"`
}

// BackfillOutput reports how many entities were queued.
type BackfillOutput struct {
	Enqueued int `json:"enqueued"`
}
