package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
	"storyreel/internal/orchestrator"
)

type submitJobRequest struct {
	SubjectID   string   `json:"subject_id" validate:"required"`
	Prompt      string   `json:"prompt" validate:"required"`
	Style       string   `json:"style"`
	Theme       string   `json:"theme"`
	Locale      string   `json:"locale"`
	SceneImages []string `json:"scene_images" validate:"required,dive,required"`
	Priority    int      `json:"priority"`
}

type submitJobResponse struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}

// SubmitVideo starts a full story video pipeline for one subject.
func (a *App) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, domain.JobKindStoryVideo)
}

// SubmitImage starts a single scene render.
func (a *App) SubmitImage(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, domain.JobKindSceneImage)
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, kind domain.JobKind) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.validationError(w, err)
		return
	}
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}

	jobID, err := a.Orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		Kind:        kind,
		SubjectID:   req.SubjectID,
		Prompt:      req.Prompt,
		Style:       req.Style,
		Theme:       req.Theme,
		Locale:      req.Locale,
		SceneImages: req.SceneImages,
		Priority:    req.Priority,
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.json(w, http.StatusAccepted, submitJobResponse{
		JobID:            jobID,
		Status:           string(domain.JobStatusQueued),
		EstimatedSeconds: orchestrator.EstimateSeconds(kind),
	})
}

// JobStatus returns the reconciled status of one job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "job_id required")
		return
	}
	status, err := a.Orchestrator.GetStatus(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

// CancelJob preempts a job that has not finished.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "job_id required")
		return
	}
	outcome, err := a.Orchestrator.Cancel(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	switch outcome.Result {
	case orchestrator.CancelOK:
		a.json(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(domain.JobStatusCancelled),
		})
	case orchestrator.CancelNotFound:
		a.error(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
	default:
		message := "job can no longer be cancelled"
		if outcome.State != "" {
			message += ": " + outcome.State
		}
		a.error(w, http.StatusBadRequest, "CANNOT_CANCEL", message)
	}
}
