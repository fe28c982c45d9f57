package handler

import (
	"log/slog"
	"net/http"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
)

type ViewHandler struct {
	svc    *tracker.Service
	logger *slog.Logger
}

func NewViewHandler(svc *tracker.Service, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{svc: svc, logger: logger}
}

func (h *ViewHandler) Today(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.TodayView(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.TodayEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ViewHandler) Week(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.WeekView(r.Context(), r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *ViewHandler) Month(w http.ResponseWriter, r *http.Request) {
	grid, err := h.svc.MonthView(r.Context(), r.URL.Query().Get("anchor"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

func (h *ViewHandler) Overall(w http.ResponseWriter, r *http.Request) {
	grid, err := h.svc.OverallView(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}
