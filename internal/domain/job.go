package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	// JobKindStoryVideo runs the full pipeline: script synthesis, per-scene
	// image-to-video rendering, background music and final assembly.
	JobKindStoryVideo JobKind = "story_video"
	// JobKindSceneImage runs a single image-to-video render for one scene.
	JobKindSceneImage JobKind = "scene_image"
)

// Valid reports whether the kind is one the pipeline knows how to execute.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindStoryVideo, JobKindSceneImage:
		return true
	}
	return false
}

// SceneImageCount returns the exact number of scene image references a
// submission of this kind must carry. Submissions with any other count are
// rejected, not truncated or padded.
func (k JobKind) SceneImageCount() int {
	switch k {
	case JobKindStoryVideo:
		return 3
	case JobKindSceneImage:
		return 1
	}
	return 0
}

// JobStatus enumerates coarse job lifecycle states as seen by callers.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	// JobStatusUnknown is reported when a job vanished from the work queue
	// without a terminal durable record. It is never stored.
	JobStatusUnknown JobStatus = "unknown"
)

// Terminal reports whether the status is final. A terminal durable record
// never transitions again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is the durable record persisted per submission. It is written at
// creation and at terminal transitions and survives queue restarts.
type Job struct {
	ID          string
	SubjectID   string
	Kind        JobKind
	Status      JobStatus
	ProgressPct int
	CurrentStep string
	Error       string
	BatchID     string
	Style       string
	Theme       string
	ResultJSON  []byte
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// JobPayload is the execution input carried through the work queue to the
// worker. The durable record keeps only the kind-specific fields.
type JobPayload struct {
	Prompt      string   `json:"prompt"`
	Style       string   `json:"style,omitempty"`
	Theme       string   `json:"theme,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	SceneImages []string `json:"scene_images"`
}

// StatusView is the reconciled, caller-facing status of a job, merged from
// the work queue, the progress cache and the durable record.
type StatusView struct {
	JobID       string            `json:"job_id"`
	Kind        JobKind           `json:"kind,omitempty"`
	Status      JobStatus         `json:"status"`
	ProgressPct int               `json:"progress_pct"`
	CurrentStep string            `json:"current_step,omitempty"`
	Error       string            `json:"error,omitempty"`
	EtaSeconds  int               `json:"eta_seconds"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
}
