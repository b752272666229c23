package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"storyreel/internal/domain"
)

// StreamJob pushes reconciled status over a websocket until the job reaches
// a terminal state. It is poll-push: the server re-reads status on an
// interval and only the transport is push-based.
func (a *App) StreamJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_FIELDS", "job_id required")
		return
	}

	// Resolve once before the upgrade so unknown jobs still get a clean 404.
	status, err := a.Orchestrator.GetStatus(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("stream: upgrade failed")
		return
	}
	defer conn.Close()

	if done := a.pushStatus(conn, status); done {
		return
	}

	ticker := time.NewTicker(a.streamPoll)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		status, err := a.Orchestrator.GetStatus(r.Context(), jobID)
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job no longer visible"),
				time.Now().Add(time.Second))
			return
		}
		if done := a.pushStatus(conn, status); done {
			return
		}
	}
}

// pushStatus writes one status frame and reports whether the stream should
// end. Write failures and terminal or unknown statuses both end it.
func (a *App) pushStatus(conn *websocket.Conn, status *domain.StatusView) bool {
	if err := conn.WriteJSON(status); err != nil {
		return true
	}
	if status.Status.Terminal() || status.Status == domain.JobStatusUnknown {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(status.Status)),
			time.Now().Add(time.Second))
		return true
	}
	return false
}
