package domain

import "time"

// ProgressSnapshot is the ephemeral, frequently overwritten view of an
// in-flight job kept in the progress cache. Absence of a snapshot says
// nothing about whether the job exists.
type ProgressSnapshot struct {
	JobID       string
	Status      JobStatus
	ProgressPct int
	CurrentStep string
	Artifacts   map[string]string
	UpdatedAt   time.Time
}
