package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tct123/open-source-habit-tracker-app/internal/backup"
	"github.com/tct123/open-source-habit-tracker-app/internal/config"
	"github.com/tct123/open-source-habit-tracker-app/internal/database"
	"github.com/tct123/open-source-habit-tracker-app/internal/handler"
	"github.com/tct123/open-source-habit-tracker-app/internal/middleware"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
	ws "github.com/tct123/open-source-habit-tracker-app/internal/websocket"
)

// Maintenance and backup routes allow this many requests per client and
// route each minute.
const (
	heavyLimit  = 5
	heavyPeriod = time.Minute
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	tracker       *tracker.Service
	habitH        *handler.HabitHandler
	viewH         *handler.ViewHandler
	maintenanceH  *handler.MaintenanceHandler
	backupH       *handler.BackupHandler
	backupManager *backup.Manager
	limiter       *middleware.Limiter
	logger        *slog.Logger
}

func New(db *sql.DB, svc *tracker.Service, backupCfg config.BackupConfig, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	backupMgr := backup.NewManager(backupCfg, db, func(b model.Backup) {
		hub.Broadcast(ws.BackupFinished(b))
	}, logger.With("component", "backup"))

	return &Server{
		db:            db,
		hub:           hub,
		tracker:       svc,
		habitH:        handler.NewHabitHandler(svc, hub, logger.With("component", "habit")),
		viewH:         handler.NewViewHandler(svc, logger.With("component", "view")),
		maintenanceH:  handler.NewMaintenanceHandler(svc, logger.With("component", "maintenance")),
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
		backupManager: backupMgr,
		limiter:       middleware.NewLimiter(heavyLimit, heavyPeriod),
		logger:        logger,
	}
}

// Hub returns the change feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Limiter returns the rate limiter for cleanup tasks.
func (s *Server) Limiter() *middleware.Limiter {
	return s.limiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", ws.Handler(s.hub))

	// Habit registry
	mux.HandleFunc("GET /api/habits", s.habitH.List)
	mux.HandleFunc("POST /api/habits", s.habitH.Create)
	mux.HandleFunc("PATCH /api/habits/{id}", s.habitH.Update)
	mux.HandleFunc("DELETE /api/habits/{id}", s.habitH.Delete)
	mux.HandleFunc("POST /api/habits/{id}/archive", s.habitH.Archive)
	mux.HandleFunc("POST /api/habits/{id}/restore", s.habitH.Restore)
	mux.HandleFunc("PUT /api/habits/order", s.habitH.Reorder)

	// Completions
	mux.HandleFunc("POST /api/habits/{id}/toggle", s.habitH.Toggle)
	mux.HandleFunc("GET /api/habits/{id}/status", s.habitH.Status)

	// Views
	mux.HandleFunc("GET /api/views/today", s.viewH.Today)
	mux.HandleFunc("GET /api/views/week", s.viewH.Week)
	mux.HandleFunc("GET /api/views/month", s.viewH.Month)
	mux.HandleFunc("GET /api/views/overall", s.viewH.Overall)

	// Maintenance and backups
	limit := middleware.Limit(s.limiter)
	mux.Handle("POST /api/maintenance/rebuild", limit(http.HandlerFunc(s.maintenanceH.Rebuild)))
	mux.HandleFunc("GET /api/maintenance/verify", s.maintenanceH.Verify)
	mux.Handle("POST /api/backups", limit(http.HandlerFunc(s.backupH.Create)))
	mux.HandleFunc("GET /api/backups", s.backupH.List)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	version, err := database.SchemaVersion(s.db)
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"schema_version": version,
		"today":          s.tracker.Calendar().Today(),
	})
}
