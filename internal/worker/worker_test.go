package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/cache"
	"storyreel/internal/domain"
	"storyreel/internal/providers/pipeline"
	"storyreel/internal/queue"
)

// stubAdapter completes every invocation immediately unless told to fail.
// onInvoke runs before the provider call returns, which lets tests race a
// cancellation against an in-flight stage.
type stubAdapter struct {
	name     string
	failWith string
	onInvoke func(input pipeline.StageInput)

	mu      sync.Mutex
	invoked []pipeline.StageInput
}

func (a *stubAdapter) Invoke(_ context.Context, input pipeline.StageInput) (*pipeline.Invocation, error) {
	a.mu.Lock()
	a.invoked = append(a.invoked, input)
	n := len(a.invoked)
	a.mu.Unlock()
	if a.onInvoke != nil {
		a.onInvoke(input)
	}
	return &pipeline.Invocation{ProviderJobID: fmt.Sprintf("%s-%d", a.name, n), Status: pipeline.StatusQueued}, nil
}

func (a *stubAdapter) Poll(_ context.Context, providerJobID string) (*pipeline.PollResult, error) {
	if a.failWith != "" {
		return &pipeline.PollResult{Status: pipeline.StatusFailed, Error: a.failWith}, nil
	}
	return &pipeline.PollResult{
		Status: pipeline.StatusCompleted,
		Result: map[string]string{"url": fmt.Sprintf("https://cdn.example.com/%s/%s", a.name, providerJobID)},
	}, nil
}

func (a *stubAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.invoked)
}

// memJobs is an in-memory JobRepository with the same terminal-state
// immutability the SQL implementation enforces.
type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[string]*domain.Job)}
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) ListByBatchID(_ context.Context, _ string) ([]domain.Job, error) {
	return nil, nil
}

func (m *memJobs) SetProgress(_ context.Context, jobID string, pct int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusProcessing
	job.ProgressPct = pct
	job.CurrentStep = step
	return nil
}

func (m *memJobs) MarkTerminal(_ context.Context, jobID string, status domain.JobStatus, errMsg string, resultJSON []byte, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = status
	job.Error = errMsg
	job.ResultJSON = resultJSON
	job.CompletedAt = &completedAt
	if status == domain.JobStatusCompleted {
		job.ProgressPct = 100
	}
	return true, nil
}

type testEnv struct {
	queue    *queue.Queue
	cache    *cache.Store
	jobs     *memJobs
	script   *stubAdapter
	video    *stubAdapter
	music    *stubAdapter
	assembly *stubAdapter
	worker   *Worker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		queue:    queue.New(queue.Options{RetryBackoff: time.Millisecond}),
		cache:    cache.NewStore(0),
		jobs:     newMemJobs(),
		script:   &stubAdapter{name: "script"},
		video:    &stubAdapter{name: "video"},
		music:    &stubAdapter{name: "music"},
		assembly: &stubAdapter{name: "assembly"},
	}
	env.worker = New(Options{
		Queue:             env.queue,
		Cache:             env.cache,
		Jobs:              env.jobs,
		Script:            env.script,
		Video:             env.video,
		Music:             env.music,
		Assembly:          env.assembly,
		Logger:            zerolog.Nop(),
		Concurrency:       1,
		PollInterval:      time.Millisecond,
		StagePollInterval: time.Millisecond,
		StageTimeout:      time.Second,
	})
	return env
}

func (env *testEnv) enqueue(t *testing.T, kind domain.JobKind, attempts int) string {
	t.Helper()
	jobID := fmt.Sprintf("%s-subj-1-%d", kind, time.Now().UnixNano())
	scenes := make([]string, kind.SceneImageCount())
	for i := range scenes {
		scenes[i] = fmt.Sprintf("https://cdn.example.com/scene-%d.png", i+1)
	}
	payload, err := json.Marshal(domain.JobPayload{
		Prompt:      "harbor town at dawn",
		Style:       "film noir",
		Theme:       "nostalgia",
		Locale:      "en",
		SceneImages: scenes,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ctx := context.Background()
	if err := env.jobs.Create(ctx, &domain.Job{
		ID:        jobID,
		SubjectID: "subj-1",
		Kind:      kind,
		Status:    domain.JobStatusQueued,
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("create record: %v", err)
	}
	if err := env.queue.Add(ctx, domain.QueuedJob{
		ID:        jobID,
		SubjectID: "subj-1",
		Kind:      kind,
		Payload:   payload,
		Attempts:  attempts,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return jobID
}

func (env *testEnv) claimAndProcess(t *testing.T) *domain.QueuedJob {
	t.Helper()
	job, err := env.queue.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.worker.process(context.Background(), job)
	return job
}

func TestStoryVideoPipelineCompletes(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.enqueue(t, domain.JobKindStoryVideo, 1)

	env.claimAndProcess(t)

	record, err := env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status != domain.JobStatusCompleted {
		t.Fatalf("record status = %s", record.Status)
	}
	if record.ProgressPct != 100 || record.CompletedAt == nil {
		t.Fatalf("record = %+v", record)
	}

	var artifacts map[string]string
	if err := json.Unmarshal(record.ResultJSON, &artifacts); err != nil {
		t.Fatalf("result json: %v", err)
	}
	for _, key := range []string{"script", "scene_1", "scene_2", "scene_3", "music", "video"} {
		if artifacts[key] == "" {
			t.Errorf("missing artifact %q in %v", key, artifacts)
		}
	}

	if got := env.script.calls(); got != 1 {
		t.Errorf("script invocations = %d", got)
	}
	if got := env.video.calls(); got != 3 {
		t.Errorf("render invocations = %d", got)
	}
	if got := env.music.calls(); got != 1 {
		t.Errorf("music invocations = %d", got)
	}
	if got := env.assembly.calls(); got != 1 {
		t.Errorf("assembly invocations = %d", got)
	}

	// The assembly stage must receive all three clips and the track.
	env.assembly.mu.Lock()
	assemblyInput := env.assembly.invoked[0]
	env.assembly.mu.Unlock()
	if len(assemblyInput.SceneURLs) != 3 || assemblyInput.MusicURL == "" {
		t.Fatalf("assembly input = %+v", assemblyInput)
	}

	queued, err := env.queue.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("queue get: %v", err)
	}
	if queued.State != domain.QueueStateCompleted {
		t.Fatalf("queue state = %s", queued.State)
	}

	snap, ok := env.cache.Get(jobID)
	if !ok {
		t.Fatal("final snapshot missing")
	}
	if snap.Status != domain.JobStatusCompleted || snap.ProgressPct != 100 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Artifacts["video"] == "" {
		t.Fatalf("snapshot artifacts = %v", snap.Artifacts)
	}
}

func TestSceneImageJobRendersSingleClip(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.enqueue(t, domain.JobKindSceneImage, 1)

	env.claimAndProcess(t)

	record, err := env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status != domain.JobStatusCompleted {
		t.Fatalf("record status = %s", record.Status)
	}
	if env.script.calls() != 0 || env.music.calls() != 0 || env.assembly.calls() != 0 {
		t.Fatal("scene image job must only hit the render stage")
	}
	if env.video.calls() != 1 {
		t.Fatalf("render invocations = %d", env.video.calls())
	}

	var artifacts map[string]string
	if err := json.Unmarshal(record.ResultJSON, &artifacts); err != nil {
		t.Fatalf("result json: %v", err)
	}
	if artifacts["video"] == "" {
		t.Fatalf("artifacts = %v", artifacts)
	}
}

func TestFailedStageRequeuesUntilAttemptsExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.video.failWith = "render capacity exceeded"
	jobID := env.enqueue(t, domain.JobKindStoryVideo, 2)

	// First attempt fails and is requeued with backoff.
	env.claimAndProcess(t)

	record, err := env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status.Terminal() {
		t.Fatalf("record went terminal after first attempt: %s", record.Status)
	}
	snap, ok := env.cache.Get(jobID)
	if !ok || snap.Status != domain.JobStatusQueued {
		t.Fatalf("snapshot after requeue = %+v", snap)
	}

	// Second attempt exhausts the budget.
	time.Sleep(5 * time.Millisecond)
	env.claimAndProcess(t)

	record, err = env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status != domain.JobStatusFailed {
		t.Fatalf("record status = %s", record.Status)
	}
	if !strings.Contains(record.Error, "scene_1") || !strings.Contains(record.Error, "render capacity exceeded") {
		t.Fatalf("record error = %q", record.Error)
	}

	queued, err := env.queue.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("queue get: %v", err)
	}
	if queued.State != domain.QueueStateFailed {
		t.Fatalf("queue state = %s", queued.State)
	}
}

func TestCancelledJobIsAbandonedMidPipeline(t *testing.T) {
	env := newTestEnv(t)
	var jobID string
	env.script.onInvoke = func(pipeline.StageInput) {
		// Cancellation lands while the script stage is in flight.
		if _, err := env.jobs.MarkTerminal(context.Background(), jobID, domain.JobStatusCancelled, "cancelled by user", nil, time.Now()); err != nil {
			t.Errorf("cancel: %v", err)
		}
	}
	jobID = env.enqueue(t, domain.JobKindStoryVideo, 1)

	env.claimAndProcess(t)

	record, err := env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status != domain.JobStatusCancelled {
		t.Fatalf("record status = %s", record.Status)
	}
	if record.ResultJSON != nil {
		t.Fatal("cancelled record must not carry results")
	}
	// The script stage finished but the render stage never started.
	if env.video.calls() != 0 {
		t.Fatalf("render invocations after cancel = %d", env.video.calls())
	}
	if _, err := env.queue.Get(context.Background(), jobID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("queue entry should be reaped, got err = %v", err)
	}
}

func TestLateCompletionCannotResurrectCancelledRecord(t *testing.T) {
	env := newTestEnv(t)
	var jobID string
	env.assembly.onInvoke = func(pipeline.StageInput) {
		// Cancellation lands after the last stage already started; the
		// worker only notices when its terminal write no-ops.
		if _, err := env.jobs.MarkTerminal(context.Background(), jobID, domain.JobStatusCancelled, "cancelled by user", nil, time.Now()); err != nil {
			t.Errorf("cancel: %v", err)
		}
	}
	jobID = env.enqueue(t, domain.JobKindStoryVideo, 1)

	env.claimAndProcess(t)

	record, err := env.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if record.Status != domain.JobStatusCancelled {
		t.Fatalf("record status = %s", record.Status)
	}
	if record.ResultJSON != nil || record.Error != "cancelled by user" {
		t.Fatalf("record = %+v", record)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.worker.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}
