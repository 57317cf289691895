package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	_ "modernc.org/sqlite"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// sqliteTime is fixed-width so stored timestamps compare correctly as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                         TEXT PRIMARY KEY,
	title                      TEXT NOT NULL DEFAULT '',
	category                   TEXT NOT NULL DEFAULT '',
	seniority                  TEXT NOT NULL DEFAULT '',
	description                TEXT NOT NULL DEFAULT '',
	requirements               TEXT NOT NULL DEFAULT '',
	tags                       TEXT NOT NULL DEFAULT '[]',
	job_type                   TEXT NOT NULL DEFAULT '',
	location                   TEXT NOT NULL DEFAULT '',
	workplace                  TEXT NOT NULL DEFAULT '',
	experience_level           TEXT NOT NULL DEFAULT '',
	salary_min                 REAL NOT NULL DEFAULT 0,
	salary_max                 REAL NOT NULL DEFAULT 0,
	active                     INTEGER NOT NULL DEFAULT 1,
	deleted                    INTEGER NOT NULL DEFAULT 0,
	embedding_vector           TEXT,
	embedding_model            TEXT NOT NULL DEFAULT '',
	embedding_generated_at     TEXT,
	embedding_status           TEXT NOT NULL DEFAULT 'pending',
	embedding_error            TEXT NOT NULL DEFAULT '',
	embedding_retries          INTEGER NOT NULL DEFAULT 0,
	similar                    TEXT NOT NULL DEFAULT '[]',
	similarity_last_computed   TEXT,
	similarity_next_compute_at TEXT,
	similarity_corpus_size     INTEGER NOT NULL DEFAULT 0,
	created_at                 TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS candidates (
	id                         TEXT PRIMARY KEY,
	title                      TEXT NOT NULL DEFAULT '',
	desired_title              TEXT NOT NULL DEFAULT '',
	skills                     TEXT NOT NULL DEFAULT '[]',
	bio                        TEXT NOT NULL DEFAULT '',
	experience                 TEXT NOT NULL DEFAULT '',
	location                   TEXT NOT NULL DEFAULT '',
	education                  TEXT NOT NULL DEFAULT '',
	salary_expectation         REAL NOT NULL DEFAULT 0,
	availability               TEXT NOT NULL DEFAULT '',
	active                     INTEGER NOT NULL DEFAULT 1,
	deleted                    INTEGER NOT NULL DEFAULT 0,
	embedding_vector           TEXT,
	embedding_model            TEXT NOT NULL DEFAULT '',
	embedding_generated_at     TEXT,
	embedding_status           TEXT NOT NULL DEFAULT 'pending',
	embedding_error            TEXT NOT NULL DEFAULT '',
	embedding_retries          INTEGER NOT NULL DEFAULT 0,
	similar                    TEXT NOT NULL DEFAULT '[]',
	similarity_last_computed   TEXT,
	similarity_next_compute_at TEXT,
	similarity_corpus_size     INTEGER NOT NULL DEFAULT 0,
	created_at                 TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS queue_items (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	task_type   TEXT NOT NULL,
	status      TEXT NOT NULL,
	priority    INTEGER NOT NULL DEFAULT 0,
	metadata    TEXT NOT NULL DEFAULT '{}',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	started_at  TEXT,
	finished_at TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS queue_items_active
	ON queue_items (kind, entity_id, task_type) WHERE status IN ('pending', 'processing');
CREATE INDEX IF NOT EXISTS queue_items_claim ON queue_items (status, priority, created_at);
CREATE TABLE IF NOT EXISTS candidate_matches (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL,
	candidate_id   TEXT NOT NULL,
	match_score    REAL NOT NULL,
	breakdown      TEXT NOT NULL,
	calculated_at  TEXT NOT NULL,
	expires_at     TEXT NOT NULL,
	contacted      INTEGER NOT NULL DEFAULT 0,
	contacted_at   TEXT,
	contact_method TEXT NOT NULL DEFAULT '',
	pool_size      INTEGER NOT NULL DEFAULT 0,
	UNIQUE (job_id, candidate_id)
);
CREATE INDEX IF NOT EXISTS candidate_matches_job ON candidate_matches (job_id, expires_at);
`

const (
	sqliteJobCols = `id, title, category, seniority, description, requirements, tags, job_type, location,
		workplace, experience_level, salary_min, salary_max, active, deleted`
	sqliteCandidateCols = `id, title, desired_title, skills, bio, experience, location, education,
		salary_expectation, availability, active, deleted`
	sqliteEmbeddingCols = `embedding_vector, embedding_model, embedding_generated_at, embedding_status,
		embedding_error, embedding_retries, similar, similarity_last_computed, similarity_next_compute_at,
		similarity_corpus_size, created_at`
	sqliteQueueCols = `id, kind, entity_id, task_type, status, priority, metadata, error,
		created_at, updated_at, started_at, finished_at`
	sqliteMatchCols = `id, job_id, candidate_id, match_score, breakdown, calculated_at, expires_at,
		contacted, contacted_at, contact_method, pool_size`
	sqliteEligible = `active = 1 AND deleted = 0`
)

// SQLite is the single-file store backed by modernc.org/sqlite.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: sqlite pragmas: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	logger.Info("store: sqlite opened", slog.String("path", path))
	return &SQLite{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

func fmtTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func fmtTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqliteEmbeddingRow receives the embedding and similarity columns.
type sqliteEmbeddingRow struct {
	vector       sql.NullString
	model        string
	generatedAt  sql.NullString
	status       string
	errMsg       string
	retries      int
	similar      string
	lastComputed sql.NullString
	nextCompute  sql.NullString
	corpusSize   int
	createdAt    string
}

func (r *sqliteEmbeddingRow) dest() []any {
	return []any{&r.vector, &r.model, &r.generatedAt, &r.status, &r.errMsg, &r.retries,
		&r.similar, &r.lastComputed, &r.nextCompute, &r.corpusSize, &r.createdAt}
}

func (r *sqliteEmbeddingRow) apply(logger *slog.Logger, id string, emb *engine.Embedding, edges *[]engine.SimilarityEdge, meta *engine.SimilarityMetadata, created *time.Time) error {
	emb.Vector = decodeSQLiteVector(logger, id, r.vector)
	emb.Model = r.model
	emb.Status = engine.EmbeddingStatus(r.status)
	emb.Error = r.errMsg
	emb.Retries = r.retries

	var err error
	if emb.GeneratedAt, err = parseNullTime(r.generatedAt); err != nil {
		return err
	}
	if *edges, err = decodeEdges([]byte(r.similar)); err != nil {
		return err
	}
	last, err := parseNullTime(r.lastComputed)
	if err != nil {
		return err
	}
	next, err := parseNullTime(r.nextCompute)
	if err != nil {
		return err
	}
	if last != nil {
		meta.LastComputed = *last
	}
	if next != nil {
		meta.NextComputeAt = *next
	}
	meta.CorpusSizeWhenComputed = r.corpusSize
	*created, err = parseTime(r.createdAt)
	return err
}

// decodeSQLiteVector parses the pgvector text form. Undecodable values yield nil.
func decodeSQLiteVector(logger *slog.Logger, id string, ns sql.NullString) []float32 {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var v pgvector.Vector
	if err := v.Scan([]byte(ns.String)); err != nil {
		logger.Warn("store: malformed vector", slog.String("id", id), slog.Any("error", err))
		return nil
	}
	return v.Slice()
}

func encodeSQLiteVector(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	s, _ := pgvector.NewVector(vec).Value()
	return s
}

// --- entities ---

func (s *SQLite) UpsertJob(ctx context.Context, j *engine.Job) error {
	tags, err := encodeJSON(nonNilStrings(j.Tags))
	if err != nil {
		return err
	}
	created := j.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+sqliteJobCols+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, category = excluded.category, seniority = excluded.seniority,
			description = excluded.description, requirements = excluded.requirements, tags = excluded.tags,
			job_type = excluded.job_type, location = excluded.location, workplace = excluded.workplace,
			experience_level = excluded.experience_level, salary_min = excluded.salary_min,
			salary_max = excluded.salary_max, active = excluded.active, deleted = excluded.deleted`,
		j.ID, j.Title, j.Category, j.Seniority, j.Description, j.Requirements, string(tags), j.JobType,
		j.Location, j.Workplace, j.ExperienceLevel, j.SalaryMin, j.SalaryMax, boolInt(j.Active),
		boolInt(j.Deleted), fmtTime(created))
	if err != nil {
		return fmt.Errorf("store: upsert job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SQLite) UpsertCandidate(ctx context.Context, c *engine.Candidate) error {
	skills, err := encodeJSON(nonNilStrings(c.Skills))
	if err != nil {
		return err
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO candidates (`+sqliteCandidateCols+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, desired_title = excluded.desired_title, skills = excluded.skills,
			bio = excluded.bio, experience = excluded.experience, location = excluded.location,
			education = excluded.education, salary_expectation = excluded.salary_expectation,
			availability = excluded.availability, active = excluded.active, deleted = excluded.deleted`,
		c.ID, c.Title, c.DesiredTitle, string(skills), c.Bio, c.Experience, c.Location, c.Education,
		c.SalaryExpectation, c.Availability, boolInt(c.Active), boolInt(c.Deleted), fmtTime(created))
	if err != nil {
		return fmt.Errorf("store: upsert candidate %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQLite) scanJob(row interface{ Scan(...any) error }) (*engine.Job, error) {
	var (
		j      engine.Job
		tags   string
		active int
		del    int
		er     sqliteEmbeddingRow
	)
	dest := append([]any{&j.ID, &j.Title, &j.Category, &j.Seniority, &j.Description, &j.Requirements,
		&tags, &j.JobType, &j.Location, &j.Workplace, &j.ExperienceLevel, &j.SalaryMin, &j.SalaryMax,
		&active, &del}, er.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	j.Active, j.Deleted = active == 1, del == 1
	if err := decodeStrings(tags, &j.Tags); err != nil {
		return nil, err
	}
	if err := er.apply(s.logger, j.ID, &j.Embedding, &j.Similar, &j.SimilarityMeta, &j.CreatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *SQLite) scanCandidate(row interface{ Scan(...any) error }) (*engine.Candidate, error) {
	var (
		c      engine.Candidate
		skills string
		active int
		del    int
		er     sqliteEmbeddingRow
	)
	dest := append([]any{&c.ID, &c.Title, &c.DesiredTitle, &skills, &c.Bio, &c.Experience, &c.Location,
		&c.Education, &c.SalaryExpectation, &c.Availability, &active, &del}, er.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.Active, c.Deleted = active == 1, del == 1
	if err := decodeStrings(skills, &c.Skills); err != nil {
		return nil, err
	}
	if err := er.apply(s.logger, c.ID, &c.Embedding, &c.Similar, &c.SimilarityMeta, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) GetJob(ctx context.Context, id string) (*engine.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobCols+`, `+sqliteEmbeddingCols+` FROM jobs WHERE id = ?`, id)
	j, err := s.scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", id, err)
	}
	return j, nil
}

func (s *SQLite) GetCandidate(ctx context.Context, id string) (*engine.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCandidateCols+`, `+sqliteEmbeddingCols+` FROM candidates WHERE id = ?`, id)
	c, err := s.scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get candidate %s: %w", id, err)
	}
	return c, nil
}

// --- embeddings ---

func (s *SQLite) GetEmbedding(ctx context.Context, ref engine.EntityRef) (*engine.Embedding, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	var (
		emb engine.Embedding
		vec sql.NullString
		gen sql.NullString
	)
	err = s.db.QueryRowContext(ctx, `SELECT embedding_vector, embedding_model, embedding_generated_at,
		embedding_status, embedding_error, embedding_retries FROM `+table+` WHERE id = ?`, ref.ID).
		Scan(&vec, &emb.Model, &gen, &emb.Status, &emb.Error, &emb.Retries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get embedding %s: %w", ref, err)
	}
	emb.Vector = decodeSQLiteVector(s.logger, ref.ID, vec)
	if emb.GeneratedAt, err = parseNullTime(gen); err != nil {
		return nil, err
	}
	return &emb, nil
}

// execEntity runs an update against ref's table and maps zero affected rows to ErrNotFound.
func (s *SQLite) execEntity(ctx context.Context, ref engine.EntityRef, set string, args ...any) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET `+set+` WHERE id = ?`, append(args, ref.ID)...)
	if err != nil {
		return fmt.Errorf("store: update %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return nil
}

func (s *SQLite) SetEmbeddingStatus(ctx context.Context, ref engine.EntityRef, status engine.EmbeddingStatus) error {
	return s.execEntity(ctx, ref, `embedding_status = ?`, string(status))
}

func (s *SQLite) ResetEmbedding(ctx context.Context, ref engine.EntityRef) error {
	return s.execEntity(ctx, ref, `embedding_status = 'pending', embedding_error = '', embedding_retries = 0`)
}

func (s *SQLite) SaveEmbedding(ctx context.Context, ref engine.EntityRef, vector []float32, model string, at time.Time) error {
	return s.execEntity(ctx, ref, `embedding_vector = ?, embedding_model = ?, embedding_generated_at = ?,
		embedding_status = 'completed', embedding_error = ''`, encodeSQLiteVector(vector), model, fmtTime(at))
}

func (s *SQLite) RecordEmbeddingFailure(ctx context.Context, ref engine.EntityRef, msg string) error {
	return s.execEntity(ctx, ref, `embedding_status = 'failed', embedding_error = ?,
		embedding_retries = embedding_retries + 1`, msg)
}

func (s *SQLite) ListMissingEmbeddings(ctx context.Context, kind engine.EntityKind) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, `SELECT id FROM `+table+` WHERE `+sqliteEligible+`
		AND embedding_status <> 'completed' ORDER BY created_at, id`)
}

func (s *SQLite) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- similarity ---

func (s *SQLite) CountCorpus(ctx context.Context, ref engine.EntityRef) (int, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+sqliteEligible+`
		AND embedding_status = 'completed' AND id <> ?`, ref.ID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count corpus: %w", err)
	}
	return n, nil
}

func (s *SQLite) ListCorpusPage(ctx context.Context, ref engine.EntityRef, afterID string, limit int) ([]CorpusEntry, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding_vector FROM `+table+` WHERE `+sqliteEligible+`
		AND embedding_status = 'completed' AND id <> ? AND id > ? ORDER BY id LIMIT ?`, ref.ID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: corpus page: %w", err)
	}
	defer rows.Close()

	var page []CorpusEntry
	for rows.Next() {
		var (
			id  string
			vec sql.NullString
		)
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, err
		}
		page = append(page, CorpusEntry{ID: id, Vector: decodeSQLiteVector(s.logger, id, vec)})
	}
	return page, rows.Err()
}

func (s *SQLite) SaveSimilarities(ctx context.Context, ref engine.EntityRef, edges []engine.SimilarityEdge, meta engine.SimilarityMetadata) error {
	data, err := encodeJSON(nonNilEdges(edges))
	if err != nil {
		return err
	}
	return s.execEntity(ctx, ref, `similar = ?, similarity_last_computed = ?, similarity_next_compute_at = ?,
		similarity_corpus_size = ?`, string(data), fmtTime(meta.LastComputed), fmtTime(meta.NextComputeAt),
		meta.CorpusSizeWhenComputed)
}

func (s *SQLite) ListDueForRecompute(ctx context.Context, kind engine.EntityKind, now time.Time, limit int) ([]string, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	return s.queryIDs(ctx, `SELECT id FROM `+table+` WHERE `+sqliteEligible+`
		AND embedding_status = 'completed' AND similarity_next_compute_at IS NOT NULL
		AND similarity_next_compute_at <= ? ORDER BY similarity_next_compute_at LIMIT ?`, fmtTime(now), limit)
}

// --- queue ---

func (s *SQLite) scanQueueItem(row interface{ Scan(...any) error }) (*engine.QueueItem, error) {
	var (
		q                 engine.QueueItem
		meta              string
		created, updated  string
		started, finished sql.NullString
	)
	if err := row.Scan(&q.ID, &q.Kind, &q.EntityID, &q.TaskType, &q.Status, &q.Priority, &meta, &q.Error,
		&created, &updated, &started, &finished); err != nil {
		return nil, err
	}
	if err := decodeQueueMetadata([]byte(meta), &q.Metadata); err != nil {
		return nil, err
	}
	var err error
	if q.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if q.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if q.StartedAt, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if q.FinishedAt, err = parseNullTime(finished); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SQLite) FindActiveQueueItem(ctx context.Context, ref engine.EntityRef, task engine.TaskType) (*engine.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteQueueCols+` FROM queue_items
		WHERE kind = ? AND entity_id = ? AND task_type = ? AND status IN ('pending', 'processing')`,
		string(ref.Kind), ref.ID, string(task))
	q, err := s.scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: find queue item: %w", err)
	}
	return q, nil
}

func (s *SQLite) InsertQueueItem(ctx context.Context, q *engine.QueueItem) error {
	meta, err := encodeJSON(q.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO queue_items (`+sqliteQueueCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, entity_id, task_type) WHERE status IN ('pending', 'processing') DO NOTHING`,
		q.ID, string(q.Kind), q.EntityID, string(q.TaskType), string(q.Status), q.Priority, string(meta),
		q.Error, fmtTime(q.CreatedAt), fmtTime(q.UpdatedAt), fmtTimePtr(q.StartedAt), fmtTimePtr(q.FinishedAt))
	if err != nil {
		return fmt.Errorf("store: insert queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLite) ClaimNextQueueItem(ctx context.Context, now time.Time) (*engine.QueueItem, error) {
	ts := fmtTime(now)
	row := s.db.QueryRowContext(ctx, `UPDATE queue_items SET status = 'processing', started_at = ?, updated_at = ?
		WHERE id = (SELECT id FROM queue_items WHERE status = 'pending' ORDER BY priority, created_at, id LIMIT 1)
		AND status = 'pending'
		RETURNING `+sqliteQueueCols, ts, ts)
	q, err := s.scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: claim queue item: %w", err)
	}
	return q, nil
}

func (s *SQLite) FinishQueueItem(ctx context.Context, id string, status engine.QueueStatus, errMsg string, now time.Time) (*engine.QueueItem, error) {
	ts := fmtTime(now)
	row := s.db.QueryRowContext(ctx, `UPDATE queue_items SET status = ?, error = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')
		RETURNING `+sqliteQueueCols, string(status), errMsg, ts, ts, id)
	q, err := s.scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := s.GetQueueItem(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("queue item %s: %w", id, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("store: finish queue item: %w", err)
	}
	return q, nil
}

func (s *SQLite) GetQueueItem(ctx context.Context, id string) (*engine.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteQueueCols+` FROM queue_items WHERE id = ?`, id)
	q, err := s.scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get queue item: %w", err)
	}
	return q, nil
}

func (s *SQLite) QueueStats(ctx context.Context) ([]QueueCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_type, status, COUNT(*) FROM queue_items
		GROUP BY task_type, status ORDER BY task_type, status`)
	if err != nil {
		return nil, fmt.Errorf("store: queue stats: %w", err)
	}
	defer rows.Close()

	var out []QueueCount
	for rows.Next() {
		var c QueueCount
		if err := rows.Scan(&c.TaskType, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) FailStaleQueueItems(ctx context.Context, startedBefore time.Time, reason string, now time.Time) ([]*engine.QueueItem, error) {
	ts := fmtTime(now)
	rows, err := s.db.QueryContext(ctx, `UPDATE queue_items SET status = 'failed', error = ?, updated_at = ?, finished_at = ?
		WHERE status = 'processing' AND started_at < ?
		RETURNING `+sqliteQueueCols, reason, ts, ts, fmtTime(startedBefore))
	if err != nil {
		return nil, fmt.Errorf("store: fail stale items: %w", err)
	}
	defer rows.Close()

	var out []*engine.QueueItem
	for rows.Next() {
		q, err := s.scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- matches ---

func (s *SQLite) ListActiveCandidates(ctx context.Context) ([]*engine.Candidate, error) {
	return s.queryCandidates(ctx, `SELECT `+sqliteCandidateCols+`, `+sqliteEmbeddingCols+` FROM candidates
		WHERE `+sqliteEligible+` ORDER BY id`)
}

func (s *SQLite) queryCandidates(ctx context.Context, query string, args ...any) ([]*engine.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list candidates: %w", err)
	}
	defer rows.Close()

	var out []*engine.Candidate
	for rows.Next() {
		c, err := s.scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) queryJobs(ctx context.Context, query string, args ...any) ([]*engine.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var out []*engine.Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanSQLiteMatch(row interface{ Scan(...any) error }) (engine.CandidateMatch, error) {
	var (
		m           engine.CandidateMatch
		breakdown   string
		calc, exp   string
		contacted   int
		contactedAt sql.NullString
	)
	if err := row.Scan(&m.ID, &m.JobID, &m.CandidateID, &m.MatchScore, &breakdown, &calc, &exp,
		&contacted, &contactedAt, &m.ContactMethod, &m.PoolSize); err != nil {
		return m, err
	}
	m.Contacted = contacted == 1
	if err := decodeBreakdown([]byte(breakdown), &m.Breakdown); err != nil {
		return m, err
	}
	var err error
	if m.CalculatedAt, err = parseTime(calc); err != nil {
		return m, err
	}
	if m.ExpiresAt, err = parseTime(exp); err != nil {
		return m, err
	}
	m.ContactedAt, err = parseNullTime(contactedAt)
	return m, err
}

func (s *SQLite) ListMatches(ctx context.Context, jobID string, now time.Time) ([]engine.CandidateMatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteMatchCols+` FROM candidate_matches
		WHERE job_id = ? AND expires_at > ? ORDER BY match_score DESC, candidate_id`, jobID, fmtTime(now))
	if err != nil {
		return nil, fmt.Errorf("store: list matches: %w", err)
	}
	defer rows.Close()

	var out []engine.CandidateMatch
	for rows.Next() {
		m, err := scanSQLiteMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLite) ReplaceMatches(ctx context.Context, jobID string, matches []engine.CandidateMatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidate_matches WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("store: delete matches: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO candidate_matches (`+sqliteMatchCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		breakdown, err := encodeJSON(m.Breakdown)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, m.ID, jobID, m.CandidateID, m.MatchScore, string(breakdown),
			fmtTime(m.CalculatedAt), fmtTime(m.ExpiresAt), boolInt(m.Contacted), fmtTimePtr(m.ContactedAt),
			m.ContactMethod, m.PoolSize); err != nil {
			return fmt.Errorf("store: insert match %s: %w", m.CandidateID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit matches: %w", err)
	}
	return nil
}

func (s *SQLite) MarkContacted(ctx context.Context, jobID, candidateID, method string, at time.Time) (*engine.CandidateMatch, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE candidate_matches SET contacted = 1, contacted_at = ?, contact_method = ?
		WHERE job_id = ? AND candidate_id = ? RETURNING `+sqliteMatchCols, fmtTime(at), method, jobID, candidateID)
	m, err := scanSQLiteMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s/%s: %w", jobID, candidateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: mark contacted: %w", err)
	}
	return &m, nil
}

// --- fallback ---

func (s *SQLite) ListJobsByCategoryLocation(ctx context.Context, category, location, excludeID string, limit int) ([]*engine.Job, error) {
	query := `SELECT ` + sqliteJobCols + `, ` + sqliteEmbeddingCols + ` FROM jobs WHERE ` + sqliteEligible + `
		AND id <> ? AND lower(category) = lower(?)`
	args := []any{excludeID, category}
	if location != "" {
		query += ` AND lower(location) = lower(?)`
		args = append(args, location)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	return s.queryJobs(ctx, query, append(args, limit)...)
}

func (s *SQLite) ListCandidatesByLocation(ctx context.Context, location string, limit int) ([]*engine.Candidate, error) {
	return s.queryCandidates(ctx, `SELECT `+sqliteCandidateCols+`, `+sqliteEmbeddingCols+` FROM candidates
		WHERE `+sqliteEligible+` AND lower(location) = lower(?) ORDER BY created_at DESC, id LIMIT ?`,
		strings.TrimSpace(location), limit)
}
