package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/domain"
	"storyreel/internal/middleware"
	"storyreel/internal/orchestrator"
)

type batchItemRequest struct {
	ItemID      string   `json:"item_id"`
	SubjectID   string   `json:"subject_id"`
	Prompt      string   `json:"prompt"`
	Style       string   `json:"style"`
	Theme       string   `json:"theme"`
	Locale      string   `json:"locale"`
	SceneImages []string `json:"scene_images"`
	Priority    int      `json:"priority"`
}

// Only the envelope is validated here. Item fields are deliberately left to
// the orchestrator's per-item validation so one bad item is recorded in its
// own result entry instead of failing the whole batch.
type batchSubmitRequest struct {
	Kind  string             `json:"kind" validate:"required"`
	Items []batchItemRequest `json:"items" validate:"required,min=1"`
}

// SubmitBatch fans one homogeneous batch out into individual jobs. Items
// fail independently; the response reports the per-item outcome.
func (a *App) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.validationError(w, err)
		return
	}

	requestLocale := middleware.LocaleFromContext(r.Context())
	items := make([]orchestrator.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		if item.Locale == "" {
			item.Locale = requestLocale
		}
		items = append(items, orchestrator.BatchItem{
			ItemID:      item.ItemID,
			SubjectID:   item.SubjectID,
			Prompt:      item.Prompt,
			Style:       item.Style,
			Theme:       item.Theme,
			Locale:      item.Locale,
			SceneImages: item.SceneImages,
			Priority:    item.Priority,
		})
	}

	result, err := a.Orchestrator.SubmitBatch(r.Context(), domain.JobKind(req.Kind), items)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, result)
}

// BatchStatus aggregates the reconciled status of a batch. An explicit
// job_ids query overrides the stored batch membership.
func (a *App) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batch_id")
	if batchID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "batch_id required")
		return
	}

	var jobIDs []string
	if raw := r.URL.Query().Get("job_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				jobIDs = append(jobIDs, id)
			}
		}
	}

	view, err := a.Orchestrator.BatchStatus(r.Context(), batchID, jobIDs)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, view)
}
