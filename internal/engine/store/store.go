// Package store persists embeddable entities, queue items and cached candidate
// matches. Two backends implement Store: SQLite for local use and tests, and
// PostgreSQL with the pgvector extension for production.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by InsertQueueItem when an active item already
	// exists for the same entity and task type.
	ErrDuplicate = errors.New("active queue item already exists")
	// ErrConflict is returned for a transition out of a terminal queue state.
	ErrConflict = errors.New("queue item is not active")
)

// CorpusEntry is one comparison vector. Vector is nil when the stored value
// could not be decoded.
type CorpusEntry struct {
	ID     string
	Vector []float32
}

// QueueCount is one row of queue statistics.
type QueueCount struct {
	TaskType engine.TaskType    `json:"task_type"`
	Status   engine.QueueStatus `json:"status"`
	Count    int                `json:"count"`
}

// Store is the persistence contract of the matching engine.
type Store interface {
	UpsertJob(ctx context.Context, job *engine.Job) error
	UpsertCandidate(ctx context.Context, c *engine.Candidate) error
	GetJob(ctx context.Context, id string) (*engine.Job, error)
	GetCandidate(ctx context.Context, id string) (*engine.Candidate, error)

	// Embedding sub-record.
	GetEmbedding(ctx context.Context, ref engine.EntityRef) (*engine.Embedding, error)
	SetEmbeddingStatus(ctx context.Context, ref engine.EntityRef, status engine.EmbeddingStatus) error
	ResetEmbedding(ctx context.Context, ref engine.EntityRef) error
	SaveEmbedding(ctx context.Context, ref engine.EntityRef, vector []float32, model string, at time.Time) error
	RecordEmbeddingFailure(ctx context.Context, ref engine.EntityRef, msg string) error
	ListMissingEmbeddings(ctx context.Context, kind engine.EntityKind) ([]string, error)

	// Similarity corpus and results.
	CountCorpus(ctx context.Context, ref engine.EntityRef) (int, error)
	ListCorpusPage(ctx context.Context, ref engine.EntityRef, afterID string, limit int) ([]CorpusEntry, error)
	SaveSimilarities(ctx context.Context, ref engine.EntityRef, edges []engine.SimilarityEdge, meta engine.SimilarityMetadata) error
	ListDueForRecompute(ctx context.Context, kind engine.EntityKind, now time.Time, limit int) ([]string, error)

	// Work queue.
	FindActiveQueueItem(ctx context.Context, ref engine.EntityRef, task engine.TaskType) (*engine.QueueItem, error)
	InsertQueueItem(ctx context.Context, item *engine.QueueItem) error
	ClaimNextQueueItem(ctx context.Context, now time.Time) (*engine.QueueItem, error)
	FinishQueueItem(ctx context.Context, id string, status engine.QueueStatus, errMsg string, now time.Time) (*engine.QueueItem, error)
	GetQueueItem(ctx context.Context, id string) (*engine.QueueItem, error)
	QueueStats(ctx context.Context) ([]QueueCount, error)
	FailStaleQueueItems(ctx context.Context, startedBefore time.Time, reason string, now time.Time) ([]*engine.QueueItem, error)

	// Candidate matches.
	ListActiveCandidates(ctx context.Context) ([]*engine.Candidate, error)
	ListMatches(ctx context.Context, jobID string, now time.Time) ([]engine.CandidateMatch, error)
	ReplaceMatches(ctx context.Context, jobID string, matches []engine.CandidateMatch) error
	MarkContacted(ctx context.Context, jobID, candidateID, method string, at time.Time) (*engine.CandidateMatch, error)

	// Degraded, non-semantic matching.
	ListJobsByCategoryLocation(ctx context.Context, category, location, excludeID string, limit int) ([]*engine.Job, error)
	ListCandidatesByLocation(ctx context.Context, location string, limit int) ([]*engine.Candidate, error)

	Close() error
}

// tableFor maps an entity kind to its table. Kinds are a closed set, so the
// result is safe to splice into SQL.
func tableFor(kind engine.EntityKind) (string, error) {
	switch kind {
	case engine.KindJob:
		return "jobs", nil
	case engine.KindCandidate:
		return "candidates", nil
	}
	return "", fmt.Errorf("store: unknown entity kind %q", kind)
}

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return data, nil
}

func decodeEdges(data []byte) ([]engine.SimilarityEdge, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var edges []engine.SimilarityEdge
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, fmt.Errorf("store: decode similar: %w", err)
	}
	return edges, nil
}

func nonNilEdges(edges []engine.SimilarityEdge) []engine.SimilarityEdge {
	if edges == nil {
		return []engine.SimilarityEdge{}
	}
	return edges
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func decodeStrings(s string, out *[]string) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("store: decode list: %w", err)
	}
	return nil
}

func decodeQueueMetadata(data []byte, out *engine.QueueMetadata) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: decode metadata: %w", err)
	}
	return nil
}

func decodeBreakdown(data []byte, out *engine.MatchBreakdown) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("store: decode breakdown: %w", err)
	}
	return nil
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)
