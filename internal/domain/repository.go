package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for durable job records.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListByBatchID(ctx context.Context, batchID string) ([]Job, error)
	SetProgress(ctx context.Context, jobID string, pct int, step string) error
	// MarkTerminal transitions the record to a terminal status. It no-ops
	// and returns false when the record is already terminal, so a
	// late-arriving worker write cannot resurrect a cancelled job.
	MarkTerminal(ctx context.Context, jobID string, status JobStatus, errMsg string, resultJSON []byte, completedAt time.Time) (bool, error)
}

// SubjectRepository resolves the domain entities jobs act on.
type SubjectRepository interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
}

// ProgressCache is the ephemeral store for in-flight progress snapshots.
type ProgressCache interface {
	Put(snap ProgressSnapshot)
	Get(jobID string) (*ProgressSnapshot, bool)
	Delete(jobID string)
}

// WorkQueue manages job eligibility and worker pickup.
type WorkQueue interface {
	Add(ctx context.Context, job QueuedJob) error
	Get(ctx context.Context, jobID string) (*QueuedJob, error)
	Remove(ctx context.Context, jobID string) error
	// Claim promotes due delayed jobs and hands out the highest-priority
	// waiting job, marking it active. Returns ErrNoJobAvailable when idle.
	Claim(ctx context.Context) (*QueuedJob, error)
	Complete(ctx context.Context, jobID string) error
	// Fail records a failed attempt. The job is re-queued while attempts
	// remain; the returned bool reports whether it was re-queued.
	Fail(ctx context.Context, jobID string, reason string) (bool, error)
}
