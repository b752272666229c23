package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

// Create inserts a new durable job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	query := `
INSERT INTO jobs (id, subject_id, kind, status, progress_pct, current_step, error_message, batch_id, style, theme, result_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.SubjectID,
		job.Kind,
		job.Status,
		job.ProgressPct,
		job.CurrentStep,
		job.Error,
		nullableString(job.BatchID),
		job.Style,
		job.Theme,
		nullableBytes(job.ResultJSON),
	)
	return err
}

// GetByID fetches a job record by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := selectJobQuery + `
WHERE id = $1;
`
	job, err := scanJob(r.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListByBatchID returns all job records sharing a batch id, in submission order.
func (r *JobRepositoryPG) ListByBatchID(ctx context.Context, batchID string) ([]domain.Job, error) {
	query := selectJobQuery + `
WHERE batch_id = $1
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetProgress updates the coarse progress mirror on a non-terminal record.
func (r *JobRepositoryPG) SetProgress(ctx context.Context, jobID string, pct int, step string) error {
	query := `
UPDATE jobs
SET status = $2,
    progress_pct = $3,
    current_step = $4
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	_, err := r.pool.Exec(ctx, query, jobID, domain.JobStatusProcessing, pct, step)
	return err
}

// MarkTerminal transitions the record to a terminal status. Already-terminal
// records are left untouched and reported via the returned bool, which is
// what makes a late worker completion a no-op after cancellation.
func (r *JobRepositoryPG) MarkTerminal(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, resultJSON []byte, completedAt time.Time) (bool, error) {
	query := `
UPDATE jobs
SET status = $2,
    progress_pct = CASE WHEN $2 = 'completed' THEN 100 ELSE progress_pct END,
    error_message = $3,
    result_json = COALESCE($4, result_json),
    completed_at = $5
WHERE id = $1
  AND status NOT IN ('completed', 'failed', 'cancelled');
`
	tag, err := r.pool.Exec(ctx, query, jobID, status, errMsg, nullableBytes(resultJSON), completedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const selectJobQuery = `
SELECT id, subject_id, kind, status, progress_pct, current_step, error_message, COALESCE(batch_id, ''), style, theme, result_json, created_at, completed_at
FROM jobs`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.SubjectID,
		&job.Kind,
		&job.Status,
		&job.ProgressPct,
		&job.CurrentStep,
		&job.Error,
		&job.BatchID,
		&job.Style,
		&job.Theme,
		&job.ResultJSON,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
