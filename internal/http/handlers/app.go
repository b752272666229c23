// Package handlers exposes the orchestration API over HTTP. Handlers stay
// thin: decode, validate, call the orchestrator, translate domain errors to
// the wire error envelope.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/orchestrator"
)

// Orchestrator is the slice of the job service the handlers drive.
type Orchestrator interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (string, error)
	SubmitBatch(ctx context.Context, kind domain.JobKind, items []orchestrator.BatchItem) (*orchestrator.BatchResult, error)
	GetStatus(ctx context.Context, jobID string) (*domain.StatusView, error)
	BatchStatus(ctx context.Context, batchID string, jobIDs []string) (*orchestrator.BatchStatusView, error)
	Cancel(ctx context.Context, jobID string) (orchestrator.CancelOutcome, error)
}

type App struct {
	Orchestrator Orchestrator
	Logger       zerolog.Logger
	Validate     *validator.Validate

	upgrader   websocket.Upgrader
	streamPoll time.Duration
}

func NewApp(orc Orchestrator, logger zerolog.Logger) *App {
	return &App{
		Orchestrator: orc,
		Logger:       logger,
		Validate:     validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		streamPoll: time.Second,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorBody{"error": {Code: errCode, Message: message}})
}

// domainError maps orchestrator sentinels onto the wire error envelope.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingFields), errors.Is(err, domain.ErrUnknownKind):
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", err.Error())
	case errors.Is(err, domain.ErrInvalidItemCount):
		a.error(w, http.StatusBadRequest, "INVALID_ITEM_COUNT", err.Error())
	case errors.Is(err, domain.ErrSubjectNotFound):
		a.error(w, http.StatusNotFound, "SUBJECT_NOT_FOUND", "subject not found")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
	default:
		a.Logger.Error().Err(err).Msg("handler: internal error")
		a.error(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// validationError renders validator output as a MISSING_FIELDS response
// naming the offending fields.
func (a *App) validationError(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		a.json(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{
				"code":    "MISSING_FIELDS",
				"message": "missing or invalid fields",
				"fields":  fields,
			},
		})
		return
	}
	a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "invalid payload")
}
