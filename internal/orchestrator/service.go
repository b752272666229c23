// Package orchestrator coordinates job submission, status reconciliation,
// cancellation and bulk fan-out across the three job stores: the work queue,
// the progress cache and the durable record store. No cross-store transaction
// exists; the design leans on ordered, idempotent writes instead.
package orchestrator

import (
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
)

// DefaultStaggerInterval spaces out bulk submissions to stay under external
// provider rate limits.
const DefaultStaggerInterval = time.Second

// Service exposes the orchestration operations. All store clients are
// injected so tests can substitute in-memory fakes.
type Service struct {
	queue    domain.WorkQueue
	cache    domain.ProgressCache
	jobs     domain.JobRepository
	subjects domain.SubjectRepository
	logger   zerolog.Logger
	stagger  time.Duration
	now      func() time.Time
}

// Options configures a Service.
type Options struct {
	Queue           domain.WorkQueue
	Cache           domain.ProgressCache
	Jobs            domain.JobRepository
	Subjects        domain.SubjectRepository
	Logger          zerolog.Logger
	StaggerInterval time.Duration
}

// New constructs the orchestration service.
func New(opts Options) *Service {
	stagger := opts.StaggerInterval
	if stagger <= 0 {
		stagger = DefaultStaggerInterval
	}
	return &Service{
		queue:    opts.Queue,
		cache:    opts.Cache,
		jobs:     opts.Jobs,
		subjects: opts.Subjects,
		logger:   opts.Logger,
		stagger:  stagger,
		now:      time.Now,
	}
}
