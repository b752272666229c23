package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/domain"
)

// BatchItem is one homogeneous work item in a bulk submission.
type BatchItem struct {
	ItemID      string
	SubjectID   string
	Prompt      string
	Style       string
	Theme       string
	Locale      string
	SceneImages []string
	Priority    int
}

// BatchJob records the per-item submission outcome.
type BatchJob struct {
	ItemID string `json:"item_id"`
	JobID  string `json:"job_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResult is the fan-out response: one entry per input item, success or
// not.
type BatchResult struct {
	BatchID string     `json:"batch_id"`
	Jobs    []BatchJob `json:"jobs"`
}

// SubmitBatch fans a batch out into one job per item, staggering each item's
// queue delay by its index to smooth load on external providers. Items are
// isolated: one item's failure never aborts submission of the rest.
func (s *Service) SubmitBatch(ctx context.Context, kind domain.JobKind, items []BatchItem) (*BatchResult, error) {
	if !kind.Valid() {
		return nil, domain.ErrUnknownKind
	}
	if len(items) == 0 {
		return nil, domain.ErrMissingFields
	}

	result := &BatchResult{
		BatchID: uuid.NewString(),
		Jobs:    make([]BatchJob, 0, len(items)),
	}
	for i, item := range items {
		jobID, err := s.Submit(ctx, SubmitRequest{
			Kind:        kind,
			SubjectID:   item.SubjectID,
			Prompt:      item.Prompt,
			Style:       item.Style,
			Theme:       item.Theme,
			Locale:      item.Locale,
			SceneImages: item.SceneImages,
			Priority:    item.Priority,
			Delay:       time.Duration(i) * s.stagger,
			BatchID:     result.BatchID,
		})
		if err != nil {
			s.logger.Warn().Err(err).
				Str("batch_id", result.BatchID).
				Str("item_id", item.ItemID).
				Msg("batch item submission failed")
			result.Jobs = append(result.Jobs, BatchJob{ItemID: item.ItemID, Error: err.Error()})
			continue
		}
		result.Jobs = append(result.Jobs, BatchJob{ItemID: item.ItemID, JobID: jobID})
	}
	return result, nil
}

// BatchStatusView aggregates the reconciled status of every job in a batch.
// It is recomputed on every call; batches have no stored state of their own.
type BatchStatusView struct {
	BatchID string                   `json:"batch_id"`
	Counts  map[domain.JobStatus]int `json:"counts"`
	Jobs    []domain.StatusView      `json:"jobs"`
}

// BatchStatus folds per-job reconciler output into counts per coarse status.
// When jobIDs is empty the durable store's batch index supplies the members.
func (s *Service) BatchStatus(ctx context.Context, batchID string, jobIDs []string) (*BatchStatusView, error) {
	if len(jobIDs) == 0 {
		records, err := s.jobs.ListByBatchID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			jobIDs = append(jobIDs, record.ID)
		}
	}
	if len(jobIDs) == 0 {
		return nil, domain.ErrNotFound
	}

	view := &BatchStatusView{
		BatchID: batchID,
		Counts:  make(map[domain.JobStatus]int),
		Jobs:    make([]domain.StatusView, 0, len(jobIDs)),
	}
	for _, jobID := range jobIDs {
		status, err := s.GetStatus(ctx, jobID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				view.Counts[domain.JobStatusUnknown]++
				view.Jobs = append(view.Jobs, domain.StatusView{JobID: jobID, Status: domain.JobStatusUnknown})
				continue
			}
			return nil, err
		}
		view.Counts[status.Status]++
		view.Jobs = append(view.Jobs, *status)
	}
	return view, nil
}
