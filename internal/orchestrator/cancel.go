package orchestrator

import (
	"context"
	"errors"

	"storyreel/internal/domain"
)

// CancelResult classifies the outcome of a cancellation attempt.
type CancelResult string

const (
	CancelOK            CancelResult = "cancelled"
	CancelNotCancelable CancelResult = "not_cancelable"
	CancelNotFound      CancelResult = "not_found"
)

// CancelOutcome reports the result and, when cancellation was refused, the
// state the job was found in.
type CancelOutcome struct {
	Result CancelResult
	State  string
}

// Cancel preempts a job that has not finished. Only waiting, delayed and
// active jobs can be cancelled; the durable record is written terminal
// first-wins, so if the worker completes in the same instant the loser of
// the race no-ops (an accepted, documented race).
func (s *Service) Cancel(ctx context.Context, jobID string) (CancelOutcome, error) {
	record, err := s.jobs.GetByID(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return CancelOutcome{}, err
	}
	if record != nil && record.Status.Terminal() {
		return CancelOutcome{Result: CancelNotCancelable, State: string(record.Status)}, nil
	}

	queued, err := s.queue.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return CancelOutcome{}, err
		}
		if record == nil {
			return CancelOutcome{Result: CancelNotFound}, nil
		}
		// Already reaped from the queue but never recorded terminal: there
		// is nothing left to preempt.
		return CancelOutcome{Result: CancelNotCancelable, State: string(domain.JobStatusUnknown)}, nil
	}
	if !queued.State.Preemptable() {
		return CancelOutcome{Result: CancelNotCancelable, State: string(queued.State)}, nil
	}

	if err := s.queue.Remove(ctx, jobID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return CancelOutcome{}, err
	}
	changed, err := s.jobs.MarkTerminal(ctx, jobID, domain.JobStatusCancelled, "cancelled by user", nil, s.now())
	if err != nil {
		return CancelOutcome{}, err
	}
	if !changed {
		// The worker's terminal write landed first; disclose that state.
		if record, err := s.jobs.GetByID(ctx, jobID); err == nil {
			return CancelOutcome{Result: CancelNotCancelable, State: string(record.Status)}, nil
		}
		return CancelOutcome{Result: CancelNotCancelable}, nil
	}
	s.cache.Delete(jobID)

	s.logger.Info().Str("job_id", jobID).Msg("job cancelled")
	return CancelOutcome{Result: CancelOK}, nil
}
