package engine

import (
	"fmt"
	"math"
	"time"
)

// EntityKind distinguishes the two embeddable entity types.
type EntityKind string

const (
	KindJob       EntityKind = "job"
	KindCandidate EntityKind = "candidate"
)

// ParseEntityKind validates a kind string. Empty means job.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case "", KindJob:
		return KindJob, nil
	case KindCandidate:
		return KindCandidate, nil
	}
	return "", fmt.Errorf("invalid entity kind %q (valid: job, candidate)", s)
}

// EntityRef identifies an embeddable entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

func (r EntityRef) String() string { return string(r.Kind) + ":" + r.ID }

// EmbeddingStatus is the lifecycle state of an entity's embedding.
type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingProcessing EmbeddingStatus = "processing"
	EmbeddingCompleted  EmbeddingStatus = "completed"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

// Embedding is the embedding sub-record owned by the matching engine.
// A completed embedding always carries a validated vector.
type Embedding struct {
	Vector      []float32       `json:"-"`
	Model       string          `json:"model,omitempty"`
	GeneratedAt *time.Time      `json:"generated_at,omitempty"`
	Status      EmbeddingStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Retries     int             `json:"retries"`
}

// SimilarityEdge is one entry of an entity's related list.
type SimilarityEdge struct {
	TargetID   string    `json:"target_id"`
	Score      float64   `json:"score"`
	ComputedAt time.Time `json:"computed_at"`
}

// SimilarityMetadata accompanies the stored edges.
type SimilarityMetadata struct {
	LastComputed           time.Time `json:"last_computed"`
	NextComputeAt          time.Time `json:"next_compute_at"`
	CorpusSizeWhenComputed int       `json:"corpus_size_when_computed"`
}

// Job is a job posting as seen by the matching engine.
type Job struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Category        string   `json:"category,omitempty"`
	Seniority       string   `json:"seniority,omitempty"`
	Description     string   `json:"description,omitempty"`
	Requirements    string   `json:"requirements,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	JobType         string   `json:"job_type,omitempty"`
	Location        string   `json:"location,omitempty"`
	Workplace       string   `json:"workplace,omitempty"` // onsite, remote, hybrid
	ExperienceLevel string   `json:"experience_level,omitempty"`
	SalaryMin       float64  `json:"salary_min,omitempty"`
	SalaryMax       float64  `json:"salary_max,omitempty"`
	Active          bool     `json:"active"`
	Deleted         bool     `json:"deleted,omitempty"`

	Embedding      Embedding          `json:"embedding"`
	Similar        []SimilarityEdge   `json:"similar,omitempty"`
	SimilarityMeta SimilarityMetadata `json:"similarity_meta"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Candidate is a candidate profile as seen by the matching engine.
type Candidate struct {
	ID                string   `json:"id"`
	Title             string   `json:"title,omitempty"`
	DesiredTitle      string   `json:"desired_title,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	Bio               string   `json:"bio,omitempty"`
	Experience        string   `json:"experience,omitempty"`
	Location          string   `json:"location,omitempty"`
	Education         string   `json:"education,omitempty"`
	SalaryExpectation float64  `json:"salary_expectation,omitempty"`
	Availability      string   `json:"availability,omitempty"`
	Active            bool     `json:"active"`
	Deleted           bool     `json:"deleted,omitempty"`

	Embedding      Embedding          `json:"embedding"`
	Similar        []SimilarityEdge   `json:"similar,omitempty"`
	SimilarityMeta SimilarityMetadata `json:"similarity_meta"`
	CreatedAt      time.Time          `json:"created_at"`
}

// HasProfile reports whether the candidate filled in enough to be scored.
func (c *Candidate) HasProfile() bool {
	return c.DesiredTitle != "" || c.Title != "" || len(c.Skills) > 0
}

// TaskType names the work a queue item carries.
type TaskType string

const (
	TaskGenerateEmbedding TaskType = "generate_embedding"
	TaskComputeSimilarity TaskType = "compute_similarity"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueMetadata is the trace context stored with a queue item.
type QueueMetadata struct {
	Source  string `json:"source,omitempty"`
	Reason  string `json:"reason,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// QueueItem is a durable background task.
type QueueItem struct {
	ID         string        `json:"id"`
	Kind       EntityKind    `json:"kind"`
	EntityID   string        `json:"entity_id"`
	TaskType   TaskType      `json:"task_type"`
	Status     QueueStatus   `json:"status"`
	Priority   int           `json:"priority"`
	Metadata   QueueMetadata `json:"metadata"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Ref returns the entity the item belongs to.
func (q *QueueItem) Ref() EntityRef { return EntityRef{Kind: q.Kind, ID: q.EntityID} }

// MatchBreakdown holds the seven scoring components.
type MatchBreakdown struct {
	Title        float64 `json:"title"`
	Skills       float64 `json:"skills"`
	Experience   float64 `json:"experience"`
	Location     float64 `json:"location"`
	Education    float64 `json:"education"`
	Salary       float64 `json:"salary"`
	Availability float64 `json:"availability"`
}

// Total sums the components, rounded to one decimal.
func (b MatchBreakdown) Total() float64 {
	return Round1(b.Title + b.Skills + b.Experience + b.Location + b.Education + b.Salary + b.Availability)
}

// CandidateMatch is a cached job/candidate score.
type CandidateMatch struct {
	ID            string         `json:"id"`
	JobID         string         `json:"job_id"`
	CandidateID   string         `json:"candidate_id"`
	MatchScore    float64        `json:"match_score"`
	Breakdown     MatchBreakdown `json:"match_breakdown"`
	CalculatedAt  time.Time      `json:"calculated_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Contacted     bool           `json:"contacted"`
	ContactedAt   *time.Time     `json:"contacted_at,omitempty"`
	ContactMethod string         `json:"contact_method,omitempty"`
	PoolSize      int            `json:"pool_size"` // eligible candidates scored in the producing run
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
