package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/domain"
)

// SubmitRequest carries a validated submission into the pipeline.
type SubmitRequest struct {
	Kind        domain.JobKind
	SubjectID   string
	Prompt      string
	Style       string
	Theme       string
	Locale      string
	SceneImages []string
	Priority    int
	Delay       time.Duration
	Attempts    int
	BatchID     string
}

// Submit validates the request, persists the durable record, enqueues the
// job and seeds the progress cache, in that order. The ordering guarantees
// that a job which made it into the queue is always discoverable in the
// durable store, never the reverse.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := s.validate(ctx, &req); err != nil {
		return "", err
	}

	// The kind/subject/timestamp prefix keeps ids human-traceable; the random
	// suffix keeps same-millisecond submissions for one subject (the normal
	// shape of a bulk fan-out) from colliding on the primary key.
	now := s.now()
	jobID := fmt.Sprintf("%s-%s-%d-%s", req.Kind, req.SubjectID, now.UnixMilli(), uuid.NewString()[:8])

	record := &domain.Job{
		ID:          jobID,
		SubjectID:   req.SubjectID,
		Kind:        req.Kind,
		Status:      domain.JobStatusQueued,
		ProgressPct: 0,
		BatchID:     req.BatchID,
		Style:       req.Style,
		Theme:       req.Theme,
		CreatedAt:   now,
	}
	if err := s.jobs.Create(ctx, record); err != nil {
		return "", fmt.Errorf("create job record: %w", err)
	}

	payload, err := json.Marshal(domain.JobPayload{
		Prompt:      req.Prompt,
		Style:       req.Style,
		Theme:       req.Theme,
		Locale:      req.Locale,
		SceneImages: req.SceneImages,
	})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	attempts := req.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	queued := domain.QueuedJob{
		ID:        jobID,
		SubjectID: req.SubjectID,
		Kind:      req.Kind,
		BatchID:   req.BatchID,
		Payload:   payload,
		Priority:  req.Priority,
		Delay:     req.Delay,
		Attempts:  attempts,
	}
	if err := s.queue.Add(ctx, queued); err != nil {
		// The record exists but work will never start; report it as failed
		// so the job stays discoverable instead of half-created.
		if _, markErr := s.jobs.MarkTerminal(ctx, jobID, domain.JobStatusFailed, "failed to enqueue: "+err.Error(), nil, s.now()); markErr != nil {
			s.logger.Error().Err(markErr).Str("job_id", jobID).Msg("submit: mark enqueue failure failed")
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.cache.Put(domain.ProgressSnapshot{
		JobID:       jobID,
		Status:      domain.JobStatusQueued,
		ProgressPct: 0,
		UpdatedAt:   now,
	})

	s.logger.Info().
		Str("job_id", jobID).
		Str("kind", string(req.Kind)).
		Str("subject_id", req.SubjectID).
		Dur("delay", req.Delay).
		Msg("job submitted")
	return jobID, nil
}

func (s *Service) validate(ctx context.Context, req *SubmitRequest) error {
	if !req.Kind.Valid() {
		return domain.ErrUnknownKind
	}
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.SubjectID == "" || req.Prompt == "" {
		return domain.ErrMissingFields
	}
	// The scene image list must match the kind's cardinality exactly; a
	// shorter or longer list is rejected rather than padded or truncated.
	if want := req.Kind.SceneImageCount(); len(req.SceneImages) != want {
		return fmt.Errorf("%w: kind %s requires exactly %d scene images, got %d",
			domain.ErrInvalidItemCount, req.Kind, want, len(req.SceneImages))
	}
	for _, ref := range req.SceneImages {
		if strings.TrimSpace(ref) == "" {
			return domain.ErrMissingFields
		}
	}

	exists, err := s.subjects.Exists(ctx, req.SubjectID)
	if err != nil {
		return fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return domain.ErrSubjectNotFound
	}
	return nil
}
