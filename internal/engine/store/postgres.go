package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/anatolykoptev/go_match/internal/engine"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	pgJobCols = `id, title, category, seniority, description, requirements, tags, job_type, location,
		workplace, experience_level, salary_min, salary_max, active, deleted`
	pgCandidateCols = `id, title, desired_title, skills, bio, experience, location, education,
		salary_expectation, availability, active, deleted`
	pgEmbeddingCols = `embedding_vector, embedding_model, embedding_generated_at, embedding_status,
		embedding_error, embedding_retries, similar, similarity_last_computed, similarity_next_compute_at,
		similarity_corpus_size, created_at`
	pgQueueCols = `id, kind, entity_id, task_type, status, priority, metadata, error,
		created_at, updated_at, started_at, finished_at`
	pgMatchCols = `id, job_id, candidate_id, match_score, breakdown, calculated_at, expires_at,
		contacted, contacted_at, contact_method, pool_size`
	pgEligible = `active AND NOT deleted`
)

// Postgres is the production store: pgx pool plus a pgvector column per entity.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// ConnectPostgres creates a pgx pool and runs schema migrations.
func ConnectPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	// The vector type must exist before its codec can be registered.
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &Postgres{pool: pool, logger: logger}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("store: postgres connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

// Close releases the pool.
func (db *Postgres) Close() error {
	db.pool.Close()
	return nil
}

func (db *Postgres) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		db.logger.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// pgEmbeddingRow receives the embedding and similarity columns.
type pgEmbeddingRow struct {
	vector       *pgvector.Vector
	model        string
	generatedAt  *time.Time
	status       string
	errMsg       string
	retries      int
	similar      []byte
	lastComputed *time.Time
	nextCompute  *time.Time
	corpusSize   int
	createdAt    time.Time
}

func (r *pgEmbeddingRow) dest() []any {
	return []any{&r.vector, &r.model, &r.generatedAt, &r.status, &r.errMsg, &r.retries,
		&r.similar, &r.lastComputed, &r.nextCompute, &r.corpusSize, &r.createdAt}
}

func (r *pgEmbeddingRow) apply(emb *engine.Embedding, edges *[]engine.SimilarityEdge, meta *engine.SimilarityMetadata, created *time.Time) error {
	if r.vector != nil {
		emb.Vector = r.vector.Slice()
	}
	emb.Model = r.model
	emb.GeneratedAt = r.generatedAt
	emb.Status = engine.EmbeddingStatus(r.status)
	emb.Error = r.errMsg
	emb.Retries = r.retries
	if r.lastComputed != nil {
		meta.LastComputed = *r.lastComputed
	}
	if r.nextCompute != nil {
		meta.NextComputeAt = *r.nextCompute
	}
	meta.CorpusSizeWhenComputed = r.corpusSize
	*created = r.createdAt

	var err error
	*edges, err = decodeEdges(r.similar)
	return err
}

func pgVector(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

// --- entities ---

func (db *Postgres) UpsertJob(ctx context.Context, j *engine.Job) error {
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.pool.Exec(ctx, `INSERT INTO jobs (`+pgJobCols+`, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, category = EXCLUDED.category, seniority = EXCLUDED.seniority,
			description = EXCLUDED.description, requirements = EXCLUDED.requirements, tags = EXCLUDED.tags,
			job_type = EXCLUDED.job_type, location = EXCLUDED.location, workplace = EXCLUDED.workplace,
			experience_level = EXCLUDED.experience_level, salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max, active = EXCLUDED.active, deleted = EXCLUDED.deleted`,
		j.ID, j.Title, j.Category, j.Seniority, j.Description, j.Requirements, nonNilStrings(j.Tags), j.JobType,
		j.Location, j.Workplace, j.ExperienceLevel, j.SalaryMin, j.SalaryMax, j.Active, j.Deleted, created)
	if err != nil {
		return fmt.Errorf("store: upsert job %s: %w", j.ID, err)
	}
	return nil
}

func (db *Postgres) UpsertCandidate(ctx context.Context, c *engine.Candidate) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := db.pool.Exec(ctx, `INSERT INTO candidates (`+pgCandidateCols+`, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, desired_title = EXCLUDED.desired_title, skills = EXCLUDED.skills,
			bio = EXCLUDED.bio, experience = EXCLUDED.experience, location = EXCLUDED.location,
			education = EXCLUDED.education, salary_expectation = EXCLUDED.salary_expectation,
			availability = EXCLUDED.availability, active = EXCLUDED.active, deleted = EXCLUDED.deleted`,
		c.ID, c.Title, c.DesiredTitle, nonNilStrings(c.Skills), c.Bio, c.Experience, c.Location, c.Education,
		c.SalaryExpectation, c.Availability, c.Active, c.Deleted, created)
	if err != nil {
		return fmt.Errorf("store: upsert candidate %s: %w", c.ID, err)
	}
	return nil
}

func scanPgJob(row pgx.Row) (*engine.Job, error) {
	var (
		j  engine.Job
		er pgEmbeddingRow
	)
	dest := append([]any{&j.ID, &j.Title, &j.Category, &j.Seniority, &j.Description, &j.Requirements,
		&j.Tags, &j.JobType, &j.Location, &j.Workplace, &j.ExperienceLevel, &j.SalaryMin, &j.SalaryMax,
		&j.Active, &j.Deleted}, er.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := er.apply(&j.Embedding, &j.Similar, &j.SimilarityMeta, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func scanPgCandidate(row pgx.Row) (*engine.Candidate, error) {
	var (
		c  engine.Candidate
		er pgEmbeddingRow
	)
	dest := append([]any{&c.ID, &c.Title, &c.DesiredTitle, &c.Skills, &c.Bio, &c.Experience, &c.Location,
		&c.Education, &c.SalaryExpectation, &c.Availability, &c.Active, &c.Deleted}, er.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := er.apply(&c.Embedding, &c.Similar, &c.SimilarityMeta, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *Postgres) GetJob(ctx context.Context, id string) (*engine.Job, error) {
	j, err := scanPgJob(db.pool.QueryRow(ctx, `SELECT `+pgJobCols+`, `+pgEmbeddingCols+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", id, err)
	}
	return j, nil
}

func (db *Postgres) GetCandidate(ctx context.Context, id string) (*engine.Candidate, error) {
	c, err := scanPgCandidate(db.pool.QueryRow(ctx, `SELECT `+pgCandidateCols+`, `+pgEmbeddingCols+` FROM candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get candidate %s: %w", id, err)
	}
	return c, nil
}

// --- embeddings ---

func (db *Postgres) GetEmbedding(ctx context.Context, ref engine.EntityRef) (*engine.Embedding, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	var (
		emb    engine.Embedding
		vec    *pgvector.Vector
		status string
	)
	err = db.pool.QueryRow(ctx, `SELECT embedding_vector, embedding_model, embedding_generated_at,
		embedding_status, embedding_error, embedding_retries FROM `+table+` WHERE id = $1`, ref.ID).
		Scan(&vec, &emb.Model, &emb.GeneratedAt, &status, &emb.Error, &emb.Retries)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get embedding %s: %w", ref, err)
	}
	if vec != nil {
		emb.Vector = vec.Slice()
	}
	emb.Status = engine.EmbeddingStatus(status)
	return &emb, nil
}

func (db *Postgres) execEntity(ctx context.Context, ref engine.EntityRef, set string, args ...any) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	// ref.ID is always the last placeholder.
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, set, len(args)+1)
	tag, err := db.pool.Exec(ctx, query, append(args, ref.ID)...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", ref, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return nil
}

func (db *Postgres) SetEmbeddingStatus(ctx context.Context, ref engine.EntityRef, status engine.EmbeddingStatus) error {
	return db.execEntity(ctx, ref, `embedding_status = $1`, string(status))
}

func (db *Postgres) ResetEmbedding(ctx context.Context, ref engine.EntityRef) error {
	return db.execEntity(ctx, ref, `embedding_status = 'pending', embedding_error = '', embedding_retries = 0`)
}

func (db *Postgres) SaveEmbedding(ctx context.Context, ref engine.EntityRef, vector []float32, model string, at time.Time) error {
	return db.execEntity(ctx, ref, `embedding_vector = $1, embedding_model = $2, embedding_generated_at = $3,
		embedding_status = 'completed', embedding_error = ''`, pgVector(vector), model, at)
}

func (db *Postgres) RecordEmbeddingFailure(ctx context.Context, ref engine.EntityRef, msg string) error {
	return db.execEntity(ctx, ref, `embedding_status = 'failed', embedding_error = $1,
		embedding_retries = embedding_retries + 1`, msg)
}

func (db *Postgres) ListMissingEmbeddings(ctx context.Context, kind engine.EntityKind) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return db.queryIDs(ctx, `SELECT id FROM `+table+` WHERE `+pgEligible+`
		AND embedding_status <> 'completed' ORDER BY created_at, id`)
}

func (db *Postgres) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store: collect ids: %w", err)
	}
	return ids, nil
}

// --- similarity ---

func (db *Postgres) CountCorpus(ctx context.Context, ref engine.EntityRef) (int, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+pgEligible+`
		AND embedding_status = 'completed' AND id <> $1`, ref.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count corpus: %w", err)
	}
	return n, nil
}

func (db *Postgres) ListCorpusPage(ctx context.Context, ref engine.EntityRef, afterID string, limit int) ([]CorpusEntry, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx, `SELECT id, embedding_vector FROM `+table+` WHERE `+pgEligible+`
		AND embedding_status = 'completed' AND id <> $1 AND id > $2 ORDER BY id LIMIT $3`, ref.ID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: corpus page: %w", err)
	}
	defer rows.Close()

	var page []CorpusEntry
	for rows.Next() {
		var (
			id  string
			vec *pgvector.Vector
		)
		if err := rows.Scan(&id, &vec); err != nil {
			db.logger.Warn("store: malformed corpus row", slog.String("id", id), slog.Any("error", err))
			page = append(page, CorpusEntry{ID: id})
			continue
		}
		entry := CorpusEntry{ID: id}
		if vec != nil {
			entry.Vector = vec.Slice()
		}
		page = append(page, entry)
	}
	return page, rows.Err()
}

func (db *Postgres) SaveSimilarities(ctx context.Context, ref engine.EntityRef, edges []engine.SimilarityEdge, meta engine.SimilarityMetadata) error {
	data, err := encodeJSON(nonNilEdges(edges))
	if err != nil {
		return err
	}
	return db.execEntity(ctx, ref, `similar = $1, similarity_last_computed = $2, similarity_next_compute_at = $3,
		similarity_corpus_size = $4`, data, meta.LastComputed, meta.NextComputeAt, meta.CorpusSizeWhenComputed)
}

func (db *Postgres) ListDueForRecompute(ctx context.Context, kind engine.EntityKind, now time.Time, limit int) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return db.queryIDs(ctx, `SELECT id FROM `+table+` WHERE `+pgEligible+`
		AND embedding_status = 'completed' AND similarity_next_compute_at <= $1
		ORDER BY similarity_next_compute_at LIMIT $2`, now, limit)
}

// --- queue ---

func scanPgQueueItem(row pgx.Row) (*engine.QueueItem, error) {
	var (
		q    engine.QueueItem
		kind string
		task string
		stat string
		meta []byte
	)
	if err := row.Scan(&q.ID, &kind, &q.EntityID, &task, &stat, &q.Priority, &meta, &q.Error,
		&q.CreatedAt, &q.UpdatedAt, &q.StartedAt, &q.FinishedAt); err != nil {
		return nil, err
	}
	q.Kind, q.TaskType, q.Status = engine.EntityKind(kind), engine.TaskType(task), engine.QueueStatus(stat)
	if err := decodeQueueMetadata(meta, &q.Metadata); err != nil {
		return nil, err
	}
	return &q, nil
}

func (db *Postgres) FindActiveQueueItem(ctx context.Context, ref engine.EntityRef, task engine.TaskType) (*engine.QueueItem, error) {
	q, err := scanPgQueueItem(db.pool.QueryRow(ctx, `SELECT `+pgQueueCols+` FROM queue_items
		WHERE kind = $1 AND entity_id = $2 AND task_type = $3 AND status IN ('pending', 'processing')`,
		string(ref.Kind), ref.ID, string(task)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find queue item: %w", err)
	}
	return q, nil
}

func (db *Postgres) InsertQueueItem(ctx context.Context, q *engine.QueueItem) error {
	meta, err := encodeJSON(q.Metadata)
	if err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx, `INSERT INTO queue_items (`+pgQueueCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (kind, entity_id, task_type) WHERE status IN ('pending', 'processing') DO NOTHING`,
		q.ID, string(q.Kind), q.EntityID, string(q.TaskType), string(q.Status), q.Priority, meta, q.Error,
		q.CreatedAt, q.UpdatedAt, q.StartedAt, q.FinishedAt)
	if err != nil {
		return fmt.Errorf("store: insert queue item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// ClaimNextQueueItem atomically moves the most urgent pending item to
// processing. SKIP LOCKED lets concurrent workers claim different items.
func (db *Postgres) ClaimNextQueueItem(ctx context.Context, now time.Time) (*engine.QueueItem, error) {
	q, err := scanPgQueueItem(db.pool.QueryRow(ctx, `UPDATE queue_items SET status = 'processing', started_at = $1, updated_at = $1
		WHERE id = (
			SELECT id FROM queue_items WHERE status = 'pending'
			ORDER BY priority, created_at, id LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pgQueueCols, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim queue item: %w", err)
	}
	return q, nil
}

func (db *Postgres) FinishQueueItem(ctx context.Context, id string, status engine.QueueStatus, errMsg string, now time.Time) (*engine.QueueItem, error) {
	q, err := scanPgQueueItem(db.pool.QueryRow(ctx, `UPDATE queue_items SET status = $1, error = $2, updated_at = $3, finished_at = $3
		WHERE id = $4 AND status IN ('pending', 'processing')
		RETURNING `+pgQueueCols, string(status), errMsg, now, id))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := db.GetQueueItem(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("queue item %s: %w", id, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("store: finish queue item: %w", err)
	}
	return q, nil
}

func (db *Postgres) GetQueueItem(ctx context.Context, id string) (*engine.QueueItem, error) {
	q, err := scanPgQueueItem(db.pool.QueryRow(ctx, `SELECT `+pgQueueCols+` FROM queue_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get queue item: %w", err)
	}
	return q, nil
}

func (db *Postgres) QueueStats(ctx context.Context) ([]QueueCount, error) {
	rows, err := db.pool.Query(ctx, `SELECT task_type, status, COUNT(*) FROM queue_items
		GROUP BY task_type, status ORDER BY task_type, status`)
	if err != nil {
		return nil, fmt.Errorf("store: queue stats: %w", err)
	}
	defer rows.Close()

	var out []QueueCount
	for rows.Next() {
		var (
			task, status string
			n            int
		)
		if err := rows.Scan(&task, &status, &n); err != nil {
			return nil, err
		}
		out = append(out, QueueCount{TaskType: engine.TaskType(task), Status: engine.QueueStatus(status), Count: n})
	}
	return out, rows.Err()
}

func (db *Postgres) FailStaleQueueItems(ctx context.Context, startedBefore time.Time, reason string, now time.Time) ([]*engine.QueueItem, error) {
	rows, err := db.pool.Query(ctx, `UPDATE queue_items SET status = 'failed', error = $1, updated_at = $2, finished_at = $2
		WHERE status = 'processing' AND started_at < $3
		RETURNING `+pgQueueCols, reason, now, startedBefore)
	if err != nil {
		return nil, fmt.Errorf("store: fail stale items: %w", err)
	}
	defer rows.Close()

	var out []*engine.QueueItem
	for rows.Next() {
		q, err := scanPgQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- matches ---

func (db *Postgres) ListActiveCandidates(ctx context.Context) ([]*engine.Candidate, error) {
	return db.queryCandidates(ctx, `SELECT `+pgCandidateCols+`, `+pgEmbeddingCols+` FROM candidates
		WHERE `+pgEligible+` ORDER BY id`)
}

func (db *Postgres) queryCandidates(ctx context.Context, query string, args ...any) ([]*engine.Candidate, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list candidates: %w", err)
	}
	defer rows.Close()

	var out []*engine.Candidate
	for rows.Next() {
		c, err := scanPgCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *Postgres) queryJobs(ctx context.Context, query string, args ...any) ([]*engine.Job, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []*engine.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanPgMatch(row pgx.Row) (engine.CandidateMatch, error) {
	var (
		m         engine.CandidateMatch
		breakdown []byte
	)
	if err := row.Scan(&m.ID, &m.JobID, &m.CandidateID, &m.MatchScore, &breakdown, &m.CalculatedAt,
		&m.ExpiresAt, &m.Contacted, &m.ContactedAt, &m.ContactMethod, &m.PoolSize); err != nil {
		return m, err
	}
	return m, decodeBreakdown(breakdown, &m.Breakdown)
}

func (db *Postgres) ListMatches(ctx context.Context, jobID string, now time.Time) ([]engine.CandidateMatch, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+pgMatchCols+` FROM candidate_matches
		WHERE job_id = $1 AND expires_at > $2 ORDER BY match_score DESC, candidate_id`, jobID, now)
	if err != nil {
		return nil, fmt.Errorf("store: list matches: %w", err)
	}
	defer rows.Close()

	var out []engine.CandidateMatch
	for rows.Next() {
		m, err := scanPgMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceMatches deletes the job's cached matches and inserts the new set in
// one transaction, so concurrent recomputes resolve to the last writer.
func (db *Postgres) ReplaceMatches(ctx context.Context, jobID string, matches []engine.CandidateMatch) error {
	return pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM candidate_matches WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("store: delete matches: %w", err)
		}
		batch := &pgx.Batch{}
		for _, m := range matches {
			breakdown, err := encodeJSON(m.Breakdown)
			if err != nil {
				return err
			}
			batch.Queue(`INSERT INTO candidate_matches (`+pgMatchCols+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				m.ID, jobID, m.CandidateID, m.MatchScore, breakdown, m.CalculatedAt, m.ExpiresAt,
				m.Contacted, m.ContactedAt, m.ContactMethod, m.PoolSize)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("store: insert matches: %w", err)
		}
		return nil
	})
}

func (db *Postgres) MarkContacted(ctx context.Context, jobID, candidateID, method string, at time.Time) (*engine.CandidateMatch, error) {
	m, err := scanPgMatch(db.pool.QueryRow(ctx, `UPDATE candidate_matches
		SET contacted = TRUE, contacted_at = $1, contact_method = $2
		WHERE job_id = $3 AND candidate_id = $4 RETURNING `+pgMatchCols, at, method, jobID, candidateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("match %s/%s: %w", jobID, candidateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: mark contacted: %w", err)
	}
	return &m, nil
}

// --- fallback ---

func (db *Postgres) ListJobsByCategoryLocation(ctx context.Context, category, location, excludeID string, limit int) ([]*engine.Job, error) {
	query := `SELECT ` + pgJobCols + `, ` + pgEmbeddingCols + ` FROM jobs WHERE ` + pgEligible + `
		AND id <> $1 AND lower(category) = lower($2)`
	args := []any{excludeID, category}
	if location != "" {
		query += ` AND lower(location) = lower($3)`
		args = append(args, location)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args)+1)
	return db.queryJobs(ctx, query, append(args, limit)...)
}

func (db *Postgres) ListCandidatesByLocation(ctx context.Context, location string, limit int) ([]*engine.Candidate, error) {
	return db.queryCandidates(ctx, `SELECT `+pgCandidateCols+`, `+pgEmbeddingCols+` FROM candidates
		WHERE `+pgEligible+` AND lower(location) = lower($1) ORDER BY created_at DESC, id LIMIT $2`,
		strings.TrimSpace(location), limit)
}
