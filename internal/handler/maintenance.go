package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
)

type MaintenanceHandler struct {
	svc    *tracker.Service
	logger *slog.Logger
}

func NewMaintenanceHandler(svc *tracker.Service, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc, logger: logger}
}

type rebuildRequest struct {
	HabitID *int64 `json:"habit_id"`
}

// Rebuild rederives the aggregate cache of one habit, or of every habit
// when no habit_id is given. An empty body is accepted.
func (h *MaintenanceHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	if req.HabitID != nil {
		if err := h.svc.RebuildAggregates(r.Context(), *req.HabitID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"rebuilt": 1})
		return
	}

	n, err := h.svc.RebuildAll(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"rebuilt": n})
}

func (h *MaintenanceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var habitID int64
	if v := r.URL.Query().Get("habit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid habit_id"))
			return
		}
		habitID = id
	}

	mismatches, err := h.svc.VerifyAggregates(r.Context(), habitID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent": len(mismatches) == 0,
		"mismatches": mismatches,
	})
}
