package domain

import "time"

// QueueState enumerates the engine-native states of a queued job.
type QueueState string

const (
	QueueStateWaiting   QueueState = "waiting"
	QueueStateDelayed   QueueState = "delayed"
	QueueStateActive    QueueState = "active"
	QueueStateCompleted QueueState = "completed"
	QueueStateFailed    QueueState = "failed"
)

// Preemptable reports whether a job in this state may still be cancelled.
func (s QueueState) Preemptable() bool {
	switch s {
	case QueueStateWaiting, QueueStateDelayed, QueueStateActive:
		return true
	}
	return false
}

// QueuedJob is a work queue entry. Payload is opaque to the queue engine.
type QueuedJob struct {
	ID           string
	SubjectID    string
	Kind         JobKind
	BatchID      string
	Payload      []byte
	Priority     int
	Delay        time.Duration
	Attempts     int
	AttemptsMade int
	State        QueueState
	FailedReason string
	EnqueuedAt   time.Time
	AvailableAt  time.Time
}
