package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tct123/open-source-habit-tracker-app/internal/backup"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

type BackupHandler struct {
	mgr    *backup.Manager
	logger *slog.Logger
}

func NewBackupHandler(mgr *backup.Manager, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{mgr: mgr, logger: logger}
}

type backupRequest struct {
	Passphrase string `json:"passphrase"`
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}

	b, err := h.mgr.RunNow(r.Context(), req.Passphrase)
	switch {
	case errors.Is(err, backup.ErrWeakPassphrase):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	case errors.Is(err, backup.ErrInProgress):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
		return
	case err != nil:
		h.logger.Error("backup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody("backup failed"))
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.mgr.List(r.Context(), 50)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to list backups"))
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backups)
}
