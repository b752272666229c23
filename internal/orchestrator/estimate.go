package orchestrator

import "storyreel/internal/domain"

// Fixed per-kind duration estimates in seconds. These feed the ETA math and
// are deliberately static rather than measured.
const (
	storyVideoEstimateSeconds = 400
	sceneImageEstimateSeconds = 60
)

// EstimateSeconds returns the fixed total duration estimate for a kind.
func EstimateSeconds(kind domain.JobKind) int {
	switch kind {
	case domain.JobKindStoryVideo:
		return storyVideoEstimateSeconds
	case domain.JobKindSceneImage:
		return sceneImageEstimateSeconds
	}
	return 0
}

// etaSeconds derives the remaining-time estimate from progress. Terminal
// states have no remaining work.
func etaSeconds(kind domain.JobKind, status domain.JobStatus, progressPct int) int {
	if status.Terminal() || status == domain.JobStatusUnknown {
		return 0
	}
	total := EstimateSeconds(kind)
	if progressPct < 0 {
		progressPct = 0
	}
	if progressPct > 100 {
		progressPct = 100
	}
	eta := total * (100 - progressPct) / 100
	if eta < 0 {
		eta = 0
	}
	return eta
}
