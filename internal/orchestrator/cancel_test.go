package orchestrator

import (
	"context"
	"testing"
	"time"

	"storyreel/internal/domain"
)

func TestCancelQueuedJob(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	jobID, err := env.svc.Submit(ctx, validRequest(domain.JobKindStoryVideo, "subj-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome, err := env.svc.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.Result != CancelOK {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}

	// The job must be gone from the queue and its snapshot deleted.
	if _, err := env.queue.Get(ctx, jobID); err != domain.ErrNotFound {
		t.Fatalf("queue entry still present: %v", err)
	}
	if _, ok := env.cache.Get(jobID); ok {
		t.Fatal("snapshot survived cancellation")
	}

	view, err := env.svc.GetStatus(ctx, jobID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %q, want cancelled", view.Status)
	}
	if view.Error != "cancelled by user" {
		t.Fatalf("error = %q", view.Error)
	}
}

func TestCancelActiveJob(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	jobID, err := env.svc.Submit(ctx, validRequest(domain.JobKindSceneImage, "subj-2"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.queue.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	outcome, err := env.svc.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.Result != CancelOK {
		t.Fatalf("outcome = %+v, want cancelled", outcome)
	}
}

func TestCancelCompletedRecordNeverSucceeds(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	jobID, err := env.svc.Submit(ctx, validRequest(domain.JobKindSceneImage, "subj-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.jobs.MarkTerminal(ctx, jobID, domain.JobStatusCompleted, "", nil, time.Now()); err != nil {
		t.Fatalf("MarkTerminal: %v", err)
	}

	outcome, err := env.svc.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.Result != CancelNotCancelable {
		t.Fatalf("outcome = %+v, want not_cancelable", outcome)
	}
	if outcome.State != string(domain.JobStatusCompleted) {
		t.Fatalf("disclosed state = %q, want completed", outcome.State)
	}
}

func TestCancelQueueCompletedJob(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	jobID, err := env.svc.Submit(ctx, validRequest(domain.JobKindSceneImage, "subj-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := env.queue.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := env.queue.Complete(ctx, jobID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	outcome, err := env.svc.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.Result != CancelNotCancelable {
		t.Fatalf("outcome = %+v, want not_cancelable", outcome)
	}
	if outcome.State != string(domain.QueueStateCompleted) {
		t.Fatalf("disclosed state = %q, want completed", outcome.State)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	env := newTestEnv()

	outcome, err := env.svc.Cancel(context.Background(), "never-existed")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if outcome.Result != CancelNotFound {
		t.Fatalf("outcome = %+v, want not_found", outcome)
	}
}

func TestLateWorkerCompletionCannotResurrectCancelledJob(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	jobID, err := env.svc.Submit(ctx, validRequest(domain.JobKindStoryVideo, "subj-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if outcome, err := env.svc.Cancel(ctx, jobID); err != nil || outcome.Result != CancelOK {
		t.Fatalf("Cancel: %v %+v", err, outcome)
	}

	// Simulate the worker finishing the provider call after cancellation.
	changed, err := env.jobs.MarkTerminal(ctx, jobID, domain.JobStatusCompleted, "", []byte(`{"video":"late"}`), time.Now())
	if err != nil {
		t.Fatalf("MarkTerminal: %v", err)
	}
	if changed {
		t.Fatal("late completion overwrote a terminal record")
	}

	record, err := env.jobs.GetByID(ctx, jobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if record.Status != domain.JobStatusCancelled || record.Error != "cancelled by user" {
		t.Fatalf("record mutated after terminal state: %+v", record)
	}
}
