// Package tracker is the habit tracker's service layer: the habit
// registry, the toggle engine that keeps the completion ledger and the
// weekly heatmap cache in step, and the views built from them.
package tracker

import (
	"database/sql"
	"log/slog"
	"sync"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
)

type Service struct {
	db      *sql.DB
	habits  *store.HabitStore
	ledger  *store.LedgerStore
	heatmap *store.HeatmapStore
	cal     *calendar.Calendar
	logger  *slog.Logger

	// materialized remembers which habits already have a fact for memoDay,
	// so TodayView writes at most once per habit per day.
	mu           sync.Mutex
	memoDay      string
	materialized map[int64]bool
}

func New(db *sql.DB, cal *calendar.Calendar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cal == nil {
		cal = calendar.New(nil, nil)
	}
	return &Service{
		db:           db,
		habits:       store.NewHabitStore(db),
		ledger:       store.NewLedgerStore(db),
		heatmap:      store.NewHeatmapStore(db),
		cal:          cal,
		logger:       logger.With("component", "tracker"),
		materialized: make(map[int64]bool),
	}
}

func (s *Service) Calendar() *calendar.Calendar {
	return s.cal
}

// needsMaterialize reports whether habitID has not been materialized for
// day yet. A new day clears the memo.
func (s *Service) needsMaterialize(day string, habitID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoDay != day {
		s.memoDay = day
		s.materialized = make(map[int64]bool)
	}
	return !s.materialized[habitID]
}

func (s *Service) markMaterialized(day string, habitID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memoDay != day {
		return
	}
	s.materialized[habitID] = true
}

func (s *Service) forgetMaterialized(habitID int64) {
	s.mu.Lock()
	delete(s.materialized, habitID)
	s.mu.Unlock()
}

func (s *Service) resetMemo(day string) {
	s.mu.Lock()
	s.memoDay = day
	s.materialized = make(map[int64]bool)
	s.mu.Unlock()
}
