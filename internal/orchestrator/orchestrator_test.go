package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/cache"
	"storyreel/internal/domain"
	"storyreel/internal/queue"
)

// memJobs is an in-memory domain.JobRepository enforcing the same terminal
// immutability the SQL implementation enforces with a conditional UPDATE.
type memJobs struct {
	mu        sync.Mutex
	rows      map[string]*domain.Job
	order     []string
	createErr error
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[string]*domain.Job)}
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.rows[job.ID]; exists {
		return errors.New("duplicate key")
	}
	copied := *job
	m.rows[job.ID] = &copied
	m.order = append(m.order, job.ID)
	return nil
}

func (m *memJobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memJobs) ListByBatchID(_ context.Context, batchID string) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, id := range m.order {
		if job := m.rows[id]; job.BatchID == batchID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memJobs) SetProgress(_ context.Context, jobID string, pct int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.rows[jobID]
	if !ok || job.Status.Terminal() {
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
	job, ok := m.rows[jobID]
	if !ok {
		return false, nil
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = status
	job.Error = errMsg
	if status == domain.JobStatusCompleted {
		job.ProgressPct = 100
	}
	if len(resultJSON) > 0 {
		job.ResultJSON = append([]byte(nil), resultJSON...)
	}
	at := completedAt
	job.CompletedAt = &at
	return true, nil
}

type memSubjects struct {
	known map[string]bool
}

func (m *memSubjects) Exists(_ context.Context, subjectID string) (bool, error) {
	return m.known[subjectID], nil
}

// failingQueue wraps a real queue but refuses Add, for submission-ordering
// tests.
type failingQueue struct {
	domain.WorkQueue
	addErr error
}

func (f *failingQueue) Add(ctx context.Context, job domain.QueuedJob) error {
	if f.addErr != nil {
		return f.addErr
	}
	return f.WorkQueue.Add(ctx, job)
}

type testEnv struct {
	svc      *Service
	queue    *queue.Queue
	cache    *cache.Store
	jobs     *memJobs
	subjects *memSubjects
	clock    *time.Time
}

func newTestEnv() *testEnv {
	q := queue.New(queue.Options{RetryBackoff: time.Second})
	c := cache.NewStore(time.Hour)
	jobs := newMemJobs()
	subjects := &memSubjects{known: map[string]bool{"subj-1": true, "subj-2": true, "subj-3": true, "subj-4": true, "subj-5": true}}

	svc := New(Options{
		Queue:           q,
		Cache:           c,
		Jobs:            jobs,
		Subjects:        subjects,
		Logger:          zerolog.Nop(),
		StaggerInterval: time.Second,
	})
	// The fake clock is controllable but anchored to the present: the cache
	// store expires entries against the real clock, so a historical anchor
	// would make every seeded snapshot look expired.
	clock := time.Now()
	env := &testEnv{svc: svc, queue: q, cache: c, jobs: jobs, subjects: subjects, clock: &clock}
	svc.now = func() time.Time {
		*env.clock = env.clock.Add(time.Millisecond)
		return *env.clock
	}
	return env
}

func validRequest(kind domain.JobKind, subjectID string) SubmitRequest {
	images := make([]string, kind.SceneImageCount())
	for i := range images {
		images[i] = "https://cdn.example.com/scenes/s" + string(rune('1'+i)) + ".png"
	}
	return SubmitRequest{
		Kind:        kind,
		SubjectID:   subjectID,
		Prompt:      "a quiet harbor town at dawn",
		Style:       "watercolor",
		Theme:       "nostalgia",
		SceneImages: images,
	}
}
