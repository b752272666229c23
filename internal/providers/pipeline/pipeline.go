// Package pipeline adapts the external generation providers behind one
// asynchronous contract: Invoke starts a provider-side job, Poll observes it.
// Provider-specific payloads stay inside this package.
package pipeline

import "context"

// Status is the provider-side lifecycle of an invoked stage.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Done reports whether the provider job reached a final state.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StageInput is the normalized request handed to a stage adapter.
type StageInput struct {
	JobID     string
	SubjectID string
	Prompt    string
	Style     string
	Theme     string
	Locale    string
	// ImageRef is the scene image for render stages; empty otherwise.
	ImageRef string
	// SceneURLs carries previously rendered clips into the assembly stage.
	SceneURLs []string
	// MusicURL is the synthesized track for the assembly stage.
	MusicURL string
}

// Invocation identifies a started provider job.
type Invocation struct {
	ProviderJobID string
	Status        Status
}

// PollResult is one observation of a provider job.
type PollResult struct {
	Status Status
	// Result holds stage outputs keyed by artifact name (e.g. "url").
	Result map[string]string
	Error  string
}

// Adapter is the uniform contract every pipeline stage provider satisfies.
type Adapter interface {
	Invoke(ctx context.Context, input StageInput) (*Invocation, error)
	Poll(ctx context.Context, providerJobID string) (*PollResult, error)
}
