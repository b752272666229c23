// Package worker executes pipeline jobs claimed from the work queue. Workers
// run with unbounded concurrency relative to each other; every observable
// advancement lands in the progress cache and terminal outcomes go through
// the durable store's conditional write.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/providers/pipeline"
)

// Progress milestones for the story pipeline. Scene renders spread across
// the span between scriptDonePct and scenesDonePct.
const (
	scriptDonePct = 20
	scenesDonePct = 70
	musicDonePct  = 85
)

// Options wires a worker pool.
type Options struct {
	Queue    domain.WorkQueue
	Cache    domain.ProgressCache
	Jobs     domain.JobRepository
	Script   pipeline.Adapter
	Video    pipeline.Adapter
	Music    pipeline.Adapter
	Assembly pipeline.Adapter
	Logger   zerolog.Logger

	Concurrency       int
	PollInterval      time.Duration
	StagePollInterval time.Duration
	StageTimeout      time.Duration
}

// Worker pulls jobs from the work queue and drives them through the
// provider adapters.
type Worker struct {
	queue    domain.WorkQueue
	cache    domain.ProgressCache
	jobs     domain.JobRepository
	script   pipeline.Adapter
	video    pipeline.Adapter
	music    pipeline.Adapter
	assembly pipeline.Adapter
	logger   zerolog.Logger

	concurrency  int
	pollInterval time.Duration
	stagePoll    time.Duration
	stageTimeout time.Duration
	now          func() time.Time
}

// New constructs a worker pool.
func New(opts Options) *Worker {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		queue:        opts.Queue,
		cache:        opts.Cache,
		jobs:         opts.Jobs,
		script:       opts.Script,
		video:        opts.Video,
		music:        opts.Music,
		assembly:     opts.Assembly,
		logger:       opts.Logger,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		stagePoll:    opts.StagePollInterval,
		stageTimeout: opts.StageTimeout,
		now:          time.Now,
	}
}

// Run blocks until the context is cancelled, claiming and processing jobs on
// the configured number of goroutines.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("worker: started")

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info().Msg("worker: stopped")
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Claim(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNoJobAvailable) && !errors.Is(err, context.Canceled) {
				w.logger.Error().Err(err).Msg("worker: claim failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *domain.QueuedJob) {
	w.logger.Info().Str("job_id", job.ID).Str("kind", string(job.Kind)).Int("attempt", job.AttemptsMade).Msg("worker: picked job")

	var payload domain.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		w.finishFailure(ctx, job, fmt.Sprintf("decode payload: %v", err))
		return
	}

	artifacts, err := w.runPipeline(ctx, job, payload)
	if err != nil {
		if errors.Is(err, errAbandoned) {
			w.logger.Info().Str("job_id", job.ID).Msg("worker: job cancelled, abandoning")
			_ = removeQuiet(ctx, w.queue, job.ID)
			return
		}
		w.finishFailure(ctx, job, err.Error())
		return
	}
	w.finishSuccess(ctx, job, artifacts)
}

// errAbandoned signals that the durable record went terminal (cancellation)
// while the job was in flight.
var errAbandoned = errors.New("job abandoned")

func (w *Worker) runPipeline(ctx context.Context, job *domain.QueuedJob, payload domain.JobPayload) (map[string]string, error) {
	artifacts := make(map[string]string)

	switch job.Kind {
	case domain.JobKindStoryVideo:
		input := pipeline.StageInput{
			JobID:     job.ID,
			SubjectID: job.SubjectID,
			Prompt:    payload.Prompt,
			Style:     payload.Style,
			Theme:     payload.Theme,
			Locale:    payload.Locale,
		}

		scriptURL, err := w.runStage(ctx, job, w.script, input, "script", artifacts, scriptDonePct)
		if err != nil {
			return nil, err
		}
		artifacts["script"] = scriptURL

		sceneURLs := make([]string, 0, len(payload.SceneImages))
		total := len(payload.SceneImages)
		for i, imageRef := range payload.SceneImages {
			step := fmt.Sprintf("scene_%d", i+1)
			sceneInput := input
			sceneInput.ImageRef = imageRef
			pct := scriptDonePct + (scenesDonePct-scriptDonePct)*(i+1)/total
			url, err := w.runStage(ctx, job, w.video, sceneInput, step, artifacts, pct)
			if err != nil {
				return nil, err
			}
			artifacts[step] = url
			sceneURLs = append(sceneURLs, url)
		}

		musicURL, err := w.runStage(ctx, job, w.music, input, "music", artifacts, musicDonePct)
		if err != nil {
			return nil, err
		}
		artifacts["music"] = musicURL

		assemblyInput := input
		assemblyInput.SceneURLs = sceneURLs
		assemblyInput.MusicURL = musicURL
		finalURL, err := w.runStage(ctx, job, w.assembly, assemblyInput, "assemble", artifacts, 95)
		if err != nil {
			return nil, err
		}
		artifacts["video"] = finalURL
		return artifacts, nil

	case domain.JobKindSceneImage:
		input := pipeline.StageInput{
			JobID:     job.ID,
			SubjectID: job.SubjectID,
			Prompt:    payload.Prompt,
			Style:     payload.Style,
			Locale:    payload.Locale,
		}
		if len(payload.SceneImages) > 0 {
			input.ImageRef = payload.SceneImages[0]
		}
		url, err := w.runStage(ctx, job, w.video, input, "render", artifacts, 90)
		if err != nil {
			return nil, err
		}
		artifacts["video"] = url
		return artifacts, nil
	}

	return nil, fmt.Errorf("unsupported job kind %q", job.Kind)
}

// runStage checks for cancellation, reports progress, then invokes the
// adapter and waits for the provider job to finish.
func (w *Worker) runStage(ctx context.Context, job *domain.QueuedJob, adapter pipeline.Adapter, input pipeline.StageInput, step string, artifacts map[string]string, donePct int) (string, error) {
	if w.abandoned(ctx, job.ID) {
		return "", errAbandoned
	}
	w.writeProgress(ctx, job.ID, donePct-5, step, artifacts)

	invocation, err := adapter.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%s: %w", step, err)
	}
	result, err := pipeline.WaitForResult(ctx, adapter, invocation.ProviderJobID, w.stagePoll, w.stageTimeout)
	if err != nil {
		return "", fmt.Errorf("%s: %w", step, err)
	}
	if result.Status == pipeline.StatusFailed {
		reason := result.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		return "", fmt.Errorf("%s: %s", step, reason)
	}
	url := result.Result["url"]
	if url == "" {
		return "", fmt.Errorf("%s: provider returned no artifact url", step)
	}

	w.writeProgress(ctx, job.ID, donePct, step, artifacts)
	return url, nil
}

func (w *Worker) abandoned(ctx context.Context, jobID string) bool {
	record, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false
	}
	return record.Status.Terminal()
}

func (w *Worker) writeProgress(ctx context.Context, jobID string, pct int, step string, artifacts map[string]string) {
	w.cache.Put(domain.ProgressSnapshot{
		JobID:       jobID,
		Status:      domain.JobStatusProcessing,
		ProgressPct: pct,
		CurrentStep: step,
		Artifacts:   artifacts,
		UpdatedAt:   w.now(),
	})
	if err := w.jobs.SetProgress(ctx, jobID, pct, step); err != nil {
		w.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: progress mirror failed")
	}
}

func (w *Worker) finishSuccess(ctx context.Context, job *domain.QueuedJob, artifacts map[string]string) {
	resultJSON, err := json.Marshal(artifacts)
	if err != nil {
		w.finishFailure(ctx, job, fmt.Sprintf("encode result: %v", err))
		return
	}

	changed, err := w.jobs.MarkTerminal(ctx, job.ID, domain.JobStatusCompleted, "", resultJSON, w.now())
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: terminal write failed")
	}
	if !changed {
		// Cancelled while the last provider call was in flight; the
		// terminal record wins and this completion is a no-op.
		_ = removeQuiet(ctx, w.queue, job.ID)
		return
	}

	w.cache.Put(domain.ProgressSnapshot{
		JobID:       job.ID,
		Status:      domain.JobStatusCompleted,
		ProgressPct: 100,
		CurrentStep: "done",
		Artifacts:   artifacts,
		UpdatedAt:   w.now(),
	})
	if err := w.queue.Complete(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: queue complete failed")
	}
	w.logger.Info().Str("job_id", job.ID).Msg("worker: job completed")
}

func (w *Worker) finishFailure(ctx context.Context, job *domain.QueuedJob, reason string) {
	requeued, err := w.queue.Fail(ctx, job.ID, reason)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: queue fail failed")
	}
	if requeued {
		w.logger.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("worker: attempt failed, requeued")
		w.cache.Put(domain.ProgressSnapshot{
			JobID:     job.ID,
			Status:    domain.JobStatusQueued,
			UpdatedAt: w.now(),
		})
		return
	}

	if _, err := w.jobs.MarkTerminal(ctx, job.ID, domain.JobStatusFailed, reason, nil, w.now()); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: terminal write failed")
	}
	w.cache.Put(domain.ProgressSnapshot{
		JobID:     job.ID,
		Status:    domain.JobStatusFailed,
		UpdatedAt: w.now(),
	})
	w.logger.Error().Str("job_id", job.ID).Str("reason", reason).Msg("worker: job failed")
}

func removeQuiet(ctx context.Context, q domain.WorkQueue, jobID string) error {
	if err := q.Remove(ctx, jobID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}
