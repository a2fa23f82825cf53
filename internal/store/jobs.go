package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nucleohub/seqdispatch/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, query, description, ordering, priority, status, submitted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Query, job.Description, job.Ordering, job.Priority, job.Status, job.Submitted)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, query, description, ordering, priority, status, hit_count, result_in_db, submitted, finished
		 FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &j.Query, &j.Description, &j.Ordering, &j.Priority, &j.Status,
		&j.HitCount, &j.ResultInDB, &j.Submitted, &j.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) SetJobHitCount(ctx context.Context, id uuid.UUID, count int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET hit_count = $2, result_in_db = TRUE WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("set job hit count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeJob removes a job and, through cascading deletes, its chunks,
// infernal job and results.
func (s *PostgresStore) PurgeJob(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("purge job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatusFromChildren recomputes a job's aggregate status from the
// statuses of all its chunks and its infernal job, stamping the finish time
// when the job turns terminal. Must be called after every child status
// change. A job with a finish time is final: later calls leave it untouched
// and return its stored status. Returns the derived (or stored) status.
func (s *PostgresStore) UpdateJobStatusFromChildren(ctx context.Context, jobID uuid.UUID) (string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status FROM job_chunks WHERE job_id = $1
		 UNION ALL
		 SELECT status FROM infernal_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return "", fmt.Errorf("get child statuses: %w", err)
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var st string
		if err := rows.Scan(&st); err != nil {
			return "", fmt.Errorf("scan child status: %w", err)
		}
		statuses = append(statuses, st)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("read child statuses: %w", err)
	}

	derived := models.DeriveJobStatus(statuses)
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2,
		        finished = CASE WHEN $3 THEN NOW() END
		 WHERE id = $1 AND finished IS NULL`,
		jobID, derived, models.IsTerminalJobStatus(derived))
	if err != nil {
		return "", fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return derived, nil
	}

	// Unknown job, or one that already finished and must not be rewritten.
	var stored string
	err = s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get job status: %w", err)
	}
	return stored, nil
}

// --- Job chunks ---

func (s *PostgresStore) CreateJobChunk(ctx context.Context, chunk *models.JobChunk) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_chunks (id, job_id, database, status) VALUES ($1, $2, $3, $4)`,
		chunk.ID, chunk.JobID, chunk.Database, chunk.Status)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job chunk: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJobChunks(ctx context.Context, jobID uuid.UUID) ([]*models.JobChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, database, status, consumer, submitted, finished
		 FROM job_chunks WHERE job_id = $1 ORDER BY database`, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.JobChunk
	for rows.Next() {
		var c models.JobChunk
		if err := rows.Scan(&c.ID, &c.JobID, &c.Database, &c.Status, &c.Consumer, &c.Submitted, &c.Finished); err != nil {
			return nil, fmt.Errorf("scan job chunk: %w", err)
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (s *PostgresStore) GetJobChunkByID(ctx context.Context, id uuid.UUID) (*models.JobChunk, error) {
	var c models.JobChunk
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, database, status, consumer, submitted, finished
		 FROM job_chunks WHERE id = $1`, id,
	).Scan(&c.ID, &c.JobID, &c.Database, &c.Status, &c.Consumer, &c.Submitted, &c.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job chunk: %w", err)
	}
	return &c, nil
}

// SetJobChunkStatus sets the status of the chunk identified by its (job,
// database) pair. Idempotent: setting the current status again is a no-op
// success, and a chunk that already reached a terminal status is final, so
// any later write against it is also a no-op. This is what makes the
// completion callback of a duplicate delegation harmless. Setting started
// stamps the submission time; any terminal status stamps the finish time
// and clears the consumer reference. Returns the chunk id, or ErrNotFound
// for an unknown (job, database) pair.
func (s *PostgresStore) SetJobChunkStatus(ctx context.Context, jobID uuid.UUID, database, status string, opts ...UnitUpdateOption) (uuid.UUID, error) {
	params := &unitUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var id uuid.UUID
	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT id, status FROM job_chunks WHERE job_id = $1 AND database = $2`,
		jobID, database,
	).Scan(&id, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get chunk status: %w", err)
	}

	if current == status || models.IsTerminalChunkStatus(current) {
		return id, nil
	}

	terminal := models.IsTerminalChunkStatus(status)
	_, err = s.pool.Exec(ctx,
		`UPDATE job_chunks SET status = $2,
		        submitted = CASE WHEN $2 = 'started' THEN COALESCE(submitted, NOW()) ELSE submitted END,
		        finished  = CASE WHEN $3 THEN COALESCE(finished, NOW()) ELSE finished END,
		        consumer  = CASE WHEN $3 THEN NULL ELSE COALESCE($4::text, consumer) END
		 WHERE id = $1`,
		id, status, terminal, params.Consumer)
	if err != nil {
		return uuid.Nil, fmt.Errorf("set chunk status: %w", err)
	}
	return id, nil
}

// --- Infernal jobs ---

func (s *PostgresStore) CreateInfernalJob(ctx context.Context, job *models.InfernalJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO infernal_jobs (id, job_id, status, priority) VALUES ($1, $2, $3, $4)`,
		job.ID, job.JobID, job.Status, job.Priority)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create infernal job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetInfernalJob(ctx context.Context, jobID uuid.UUID) (*models.InfernalJob, error) {
	return s.getInfernalJob(ctx, `job_id`, jobID)
}

func (s *PostgresStore) GetInfernalJobByID(ctx context.Context, id uuid.UUID) (*models.InfernalJob, error) {
	return s.getInfernalJob(ctx, `id`, id)
}

func (s *PostgresStore) getInfernalJob(ctx context.Context, column string, key uuid.UUID) (*models.InfernalJob, error) {
	var i models.InfernalJob
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, status, priority, consumer, submitted, finished
		 FROM infernal_jobs WHERE `+column+` = $1`, key,
	).Scan(&i.ID, &i.JobID, &i.Status, &i.Priority, &i.Consumer, &i.Submitted, &i.Finished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get infernal job: %w", err)
	}
	return &i, nil
}

// SetInfernalJobStatus is the infernal counterpart of SetJobChunkStatus,
// keyed by the parent job id. Same idempotency and stamping contract.
func (s *PostgresStore) SetInfernalJobStatus(ctx context.Context, jobID uuid.UUID, status string, opts ...UnitUpdateOption) (uuid.UUID, error) {
	params := &unitUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var id uuid.UUID
	var current string
	err := s.pool.QueryRow(ctx,
		`SELECT id, status FROM infernal_jobs WHERE job_id = $1`, jobID,
	).Scan(&id, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get infernal job status: %w", err)
	}

	if current == status || models.IsTerminalChunkStatus(current) {
		return id, nil
	}

	terminal := models.IsTerminalChunkStatus(status)
	_, err = s.pool.Exec(ctx,
		`UPDATE infernal_jobs SET status = $2,
		        submitted = CASE WHEN $2 = 'started' THEN COALESCE(submitted, NOW()) ELSE submitted END,
		        finished  = CASE WHEN $3 THEN COALESCE(finished, NOW()) ELSE finished END,
		        consumer  = CASE WHEN $3 THEN NULL ELSE COALESCE($4::text, consumer) END
		 WHERE id = $1`,
		id, status, terminal, params.Consumer)
	if err != nil {
		return uuid.Nil, fmt.Errorf("set infernal job status: %w", err)
	}
	return id, nil
}

// PromoteCreatedUnits advances a job's created chunks and infernal job to
// pending once the sibling batch has been fully written, making them
// visible to the scheduler.
func (s *PostgresStore) PromoteCreatedUnits(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE job_chunks SET status = 'pending' WHERE job_id = $1 AND status = 'created'`, jobID); err != nil {
		return fmt.Errorf("promote chunks: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE infernal_jobs SET status = 'pending' WHERE job_id = $1 AND status = 'created'`, jobID); err != nil {
		return fmt.Errorf("promote infernal job: %w", err)
	}
	return nil
}

// FindHighestPriorityWork returns all pending chunks and pending infernal
// jobs, each tagged with its parent job's priority and submission time,
// sorted by priority tier first and submission time ascending. A strict
// two-key sort; ties keep arbitrary stable order.
func (s *PostgresStore) FindHighestPriorityWork(ctx context.Context) ([]*models.WorkUnit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT w.kind, w.unit_id, w.job_id, w.database, w.query, w.priority, w.submitted FROM (
		     SELECT 'chunk' AS kind, c.id AS unit_id, j.id AS job_id, c.database AS database,
		            j.query AS query, j.priority AS priority, j.submitted AS submitted
		     FROM job_chunks c JOIN jobs j ON j.id = c.job_id
		     WHERE c.status = 'pending'
		     UNION ALL
		     SELECT 'infernal', i.id, j.id, '', j.query, j.priority, j.submitted
		     FROM infernal_jobs i JOIN jobs j ON j.id = i.job_id
		     WHERE i.status = 'pending'
		 ) w
		 ORDER BY CASE w.priority WHEN 'high' THEN 0 ELSE 1 END, w.submitted ASC`)
	if err != nil {
		return nil, fmt.Errorf("find highest priority work: %w", err)
	}
	defer rows.Close()

	var units []*models.WorkUnit
	for rows.Next() {
		var kind string
		var u models.WorkUnit
		if err := rows.Scan(&kind, &u.UnitID, &u.JobID, &u.Database, &u.Query, &u.Priority, &u.Submitted); err != nil {
			return nil, fmt.Errorf("scan work unit: %w", err)
		}
		if kind == "infernal" {
			u.Kind = models.WorkInfernal
		} else {
			u.Kind = models.WorkChunk
		}
		units = append(units, &u)
	}
	return units, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
