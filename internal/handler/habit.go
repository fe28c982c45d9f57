package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
	"github.com/tct123/open-source-habit-tracker-app/internal/websocket"
)

type HabitHandler struct {
	broadcaster
	svc    *tracker.Service
	logger *slog.Logger
}

func NewHabitHandler(svc *tracker.Service, hub *websocket.Hub, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{broadcaster: newBroadcaster(hub), svc: svc, logger: logger}
}

func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	habits, err := h.svc.ListActiveHabits(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if habits == nil {
		habits = []model.Habit{}
	}
	writeJSON(w, http.StatusOK, habits)
}

func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.HabitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	habit, err := h.svc.CreateHabit(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.HabitChanged("created", habit.ID))
	writeJSON(w, http.StatusCreated, habit)
}

func (h *HabitHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var patch model.HabitPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	if err := h.svc.UpdateHabit(r.Context(), id, patch); err != nil {
		writeError(w, h.logger, err)
		return
	}
	habit, err := h.svc.GetHabit(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if !patch.Empty() {
		h.broadcast(websocket.HabitChanged("updated", id))
	}
	writeJSON(w, http.StatusOK, habit)
}

func (h *HabitHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "archived", func(ctx context.Context, id int64) (bool, error) {
		return true, h.svc.ArchiveHabit(ctx, id)
	})
}

// Restore announces the change only when the habit was archived.
func (h *HabitHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "restored", h.svc.RestoreHabit)
}

func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	if err := h.svc.DeleteHabit(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.HabitChanged("deleted", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HabitHandler) lifecycle(w http.ResponseWriter, r *http.Request, action string, op func(ctx context.Context, id int64) (bool, error)) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	changed, err := op(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	habit, err := h.svc.GetHabit(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if changed {
		h.broadcast(websocket.HabitChanged(action, id))
	}
	writeJSON(w, http.StatusOK, habit)
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *HabitHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := h.svc.ReorderHabits(r.Context(), req.IDs); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.HabitsReordered(req.IDs))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type toggleRequest struct {
	Date           string       `json:"date"`
	BelievedStatus model.Status `json:"believed_status"`
}

type statusResponse struct {
	HabitID int64        `json:"habit_id"`
	Date    string       `json:"date"`
	Status  model.Status `json:"status"`
}

func (h *HabitHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	status, err := h.svc.Toggle(r.Context(), id, req.Date, req.BelievedStatus)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(websocket.CompletionToggled(id, req.Date, status))
	writeJSON(w, http.StatusOK, statusResponse{HabitID: id, Date: req.Date, Status: status})
}

func (h *HabitHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.svc.Calendar().Today()
	}

	status, err := h.svc.GetStatus(r.Context(), id, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{HabitID: id, Date: date, Status: status})
}
