// Package queue implements the in-process work queue: priority and delay
// aware pickup, bounded retry attempts, and the waiting/delayed/active/
// completed/failed state enumeration the status reconciler reads.
package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"storyreel/internal/domain"
)

// Options tunes queue behavior.
type Options struct {
	// RetryBackoff is the base delay before a failed attempt becomes
	// eligible again. Attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration
}

// Queue is a mutex-guarded in-memory work queue. Terminal entries are
// retained until removed so status reads can still observe the
// engine-recorded outcome after the worker finishes.
type Queue struct {
	mu      sync.Mutex
	jobs    map[string]*domain.QueuedJob
	seq     map[string]uint64
	nextSeq uint64
	backoff time.Duration
	now     func() time.Time
}

// New creates an empty queue.
func New(opts Options) *Queue {
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Queue{
		jobs:    make(map[string]*domain.QueuedJob),
		seq:     make(map[string]uint64),
		backoff: backoff,
		now:     time.Now,
	}
}

// Add enqueues a job. A non-positive delay makes it immediately waiting;
// otherwise it parks in delayed until due. Lower priority values are picked
// first.
func (q *Queue) Add(ctx context.Context, job domain.QueuedJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.ID]; exists {
		return domain.ErrDuplicateJob
	}

	now := q.now()
	job.EnqueuedAt = now
	if job.Delay > 0 {
		job.State = domain.QueueStateDelayed
		job.AvailableAt = now.Add(job.Delay)
	} else {
		job.State = domain.QueueStateWaiting
		job.AvailableAt = now
	}
	if job.Attempts <= 0 {
		job.Attempts = 1
	}

	q.nextSeq++
	q.seq[job.ID] = q.nextSeq
	q.jobs[job.ID] = &job
	return nil
}

// Get returns a copy of the queued job, or ErrNotFound once reaped.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.QueuedJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	q.promoteLocked(job)
	copied := *job
	return &copied, nil
}

// Remove reaps the job from the queue regardless of state.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.jobs[jobID]; !ok {
		return domain.ErrNotFound
	}
	delete(q.jobs, jobID)
	delete(q.seq, jobID)
	return nil
}

// Claim hands out the highest-priority waiting job and marks it active.
// Delayed jobs whose delay elapsed are promoted first. Ties break FIFO.
func (q *Queue) Claim(ctx context.Context) (*domain.QueuedJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*domain.QueuedJob
	for _, job := range q.jobs {
		q.promoteLocked(job)
		if job.State == domain.QueueStateWaiting {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoJobAvailable
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return q.seq[a.ID] < q.seq[b.ID]
	})

	job := candidates[0]
	job.State = domain.QueueStateActive
	job.AttemptsMade++
	copied := *job
	return &copied, nil
}

// Complete marks an active job completed. The entry stays until reaped.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.State = domain.QueueStateCompleted
	job.FailedReason = ""
	return nil
}

// Fail records a failed attempt. While attempts remain the job is parked in
// delayed with a linear backoff and will be claimed again; otherwise it lands
// in the failed state with the reason retained for status reads.
func (q *Queue) Fail(ctx context.Context, jobID string, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.AttemptsMade < job.Attempts {
		job.State = domain.QueueStateDelayed
		job.AvailableAt = q.now().Add(time.Duration(job.AttemptsMade) * q.backoff)
		job.FailedReason = reason
		return true, nil
	}
	job.State = domain.QueueStateFailed
	job.FailedReason = reason
	return false, nil
}

// States returns a snapshot of job ids per state, mostly for introspection.
func (q *Queue) States() map[domain.QueueState][]string {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[domain.QueueState][]string)
	for id, job := range q.jobs {
		q.promoteLocked(job)
		out[job.State] = append(out[job.State], id)
	}
	return out
}

func (q *Queue) promoteLocked(job *domain.QueuedJob) {
	if job.State == domain.QueueStateDelayed && !q.now().Before(job.AvailableAt) {
		job.State = domain.QueueStateWaiting
	}
}

var _ domain.WorkQueue = (*Queue)(nil)
