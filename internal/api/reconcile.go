package api

import (
	"context"
	"net/http"

	apperrors "github.com/Proton-105/teller/internal/errors"
)

// ReconcileQueue schedules a vault reconciliation in the background.
type ReconcileQueue interface {
	EnqueueReconcile(ctx context.Context, terminalIDs ...string) (string, error)
}

type reconcileView struct {
	TaskID   string `json:"task_id"`
	Terminal string `json:"terminal,omitempty"`
}

// reconcile queues a reconciliation of one terminal, or of all of them when the route has no id.
func (h *Handler) reconcile(queue ReconcileQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := terminalID(r)

		var ids []string
		if id != "" {
			ids = append(ids, id)
		}

		taskID, err := queue.EnqueueReconcile(r.Context(), ids...)
		if err != nil {
			h.fail(w, r, apperrors.NewStorageError(err))
			return
		}

		writeJSON(w, http.StatusAccepted, reconcileView{TaskID: taskID, Terminal: id})
	}
}
