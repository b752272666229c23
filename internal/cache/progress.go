// Package cache holds the progress cache: a fast, TTL'd snapshot store for
// in-flight job progress. Entries are overwritten freely by the worker and
// carry no durability guarantee; readers must tolerate stale or absent data.
package cache

import (
	"sync"
	"time"

	"storyreel/internal/domain"
)

const defaultTTL = 30 * time.Minute

// Store is a mutex-guarded in-memory snapshot store with lazy expiry.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]domain.ProgressSnapshot
	now     func() time.Time
}

// NewStore creates a store. A non-positive ttl falls back to 30 minutes.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		ttl:     ttl,
		entries: make(map[string]domain.ProgressSnapshot),
		now:     time.Now,
	}
}

// Put overwrites the snapshot for the job. The artifacts map is copied so
// later mutation by the writer cannot leak into readers.
func (s *Store) Put(snap domain.ProgressSnapshot) {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = s.now()
	}
	snap.Artifacts = copyArtifacts(snap.Artifacts)

	s.mu.Lock()
	s.entries[snap.JobID] = snap
	s.mu.Unlock()
}

// Get returns a copy of the snapshot if present and not expired.
func (s *Store) Get(jobID string) (*domain.ProgressSnapshot, bool) {
	s.mu.RLock()
	snap, ok := s.entries[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Sub(snap.UpdatedAt) > s.ttl {
		s.Delete(jobID)
		return nil, false
	}
	snap.Artifacts = copyArtifacts(snap.Artifacts)
	return &snap, true
}

// Delete drops the snapshot. Missing entries are a no-op.
func (s *Store) Delete(jobID string) {
	s.mu.Lock()
	delete(s.entries, jobID)
	s.mu.Unlock()
}

func copyArtifacts(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ domain.ProgressCache = (*Store)(nil)
