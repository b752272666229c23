package orchestrator

import (
	"context"
	"encoding/json"
	"errors"

	"storyreel/internal/domain"
)

// GetStatus merges the work queue, the progress cache and the durable record
// into one status view. It is a pure read: safe to call concurrently and
// arbitrarily often, and two back-to-back calls with no intervening worker
// activity return identical output.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*domain.StatusView, error) {
	queued, err := s.queue.Get(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	record, err := s.jobs.GetByID(ctx, jobID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	snap, _ := s.cache.Get(jobID)

	if queued == nil && record == nil {
		return nil, domain.ErrNotFound
	}

	view := mergeStatus(queued, snap, record)
	view.EtaSeconds = etaSeconds(view.Kind, view.Status, view.ProgressPct)
	return view, nil
}

// mergeStatus resolves the tri-source status with a fixed precedence: the
// queue's engine-native state first, then the durable record, and the
// snapshot only for fine-grained detail while the job is active. Keeping the
// merge in one function avoids scattering the precedence across call sites.
func mergeStatus(queued *domain.QueuedJob, snap *domain.ProgressSnapshot, record *domain.Job) *domain.StatusView {
	view := &domain.StatusView{}
	if record != nil {
		view.JobID = record.ID
		view.Kind = record.Kind
	}
	if queued != nil {
		view.JobID = queued.ID
		view.Kind = queued.Kind
	}
	view.Artifacts = mergeArtifacts(record, snap)

	switch {
	case queued != nil:
		switch queued.State {
		case domain.QueueStateWaiting, domain.QueueStateDelayed:
			view.Status = domain.JobStatusQueued
			view.ProgressPct = 0
		case domain.QueueStateActive:
			if snap != nil {
				view.Status = snap.Status
				view.ProgressPct = snap.ProgressPct
				view.CurrentStep = snap.CurrentStep
			} else {
				view.Status = domain.JobStatusProcessing
				view.ProgressPct = 0
			}
		case domain.QueueStateCompleted:
			view.Status = domain.JobStatusCompleted
			view.ProgressPct = 100
		case domain.QueueStateFailed:
			view.Status = domain.JobStatusFailed
			view.Error = queued.FailedReason
			if record != nil {
				view.ProgressPct = record.ProgressPct
			}
		}
	case record != nil && record.Status.Terminal():
		view.Status = record.Status
		view.ProgressPct = record.ProgressPct
		view.CurrentStep = record.CurrentStep
		view.Error = record.Error
	default:
		// The job vanished from the queue without a terminal record.
		// Report that honestly instead of guessing.
		view.Status = domain.JobStatusUnknown
		if record != nil {
			view.ProgressPct = record.ProgressPct
			view.CurrentStep = record.CurrentStep
		}
	}
	return view
}

// mergeArtifacts unions the durable result with the snapshot's partial
// artifacts, snapshot last. The union is additive so a polling caller never
// sees a previously reported artifact disappear.
func mergeArtifacts(record *domain.Job, snap *domain.ProgressSnapshot) map[string]string {
	merged := make(map[string]string)
	if record != nil && len(record.ResultJSON) > 0 {
		var stored map[string]string
		if err := json.Unmarshal(record.ResultJSON, &stored); err == nil {
			for k, v := range stored {
				merged[k] = v
			}
		}
	}
	if snap != nil {
		for k, v := range snap.Artifacts {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}
