package tracker

import (
	"context"
	"database/sql"
	"errors"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/metrics"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
)

// slot locates date inside the weekly aggregate cache.
type slot struct {
	date      string
	weekStart string
	weekday   int
}

func locate(field, date string) (slot, error) {
	if _, err := calendar.Parse(date); err != nil {
		return slot{}, invalid(field, "must be a YYYY-MM-DD date")
	}
	weekStart, _ := calendar.WeekStart(date)
	weekday, _ := calendar.WeekdayIndex(date)
	return slot{date: date, weekStart: weekStart, weekday: weekday}, nil
}

// nextStatus is what a toggle writes: done becomes not done, anything else
// becomes done.
func nextStatus(believed model.Status) model.Status {
	if believed == model.StatusDone {
		return model.StatusNotDone
	}
	return model.StatusDone
}

// Toggle flips the status the caller believes a habit has on date and
// returns the status written. The ledger fact and the cache slot are
// written in one transaction; on failure neither changes.
func (s *Service) Toggle(ctx context.Context, habitID int64, date string, believed model.Status) (model.Status, error) {
	sl, err := locate("date", date)
	if err != nil {
		return model.StatusUnknown, err
	}
	next := nextStatus(believed)
	now := s.cal.Now()

	err = store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		h, err := s.habits.WithTx(tx).GetByID(ctx, habitID)
		if err != nil {
			return err
		}
		if h == nil {
			return notFound(habitID)
		}
		if err := s.ledger.WithTx(tx).UpsertStatus(ctx, habitID, sl.date, next, now); err != nil {
			return err
		}
		return s.heatmap.WithTx(tx).SetDay(ctx, habitID, sl.weekStart, sl.weekday, next, now)
	})
	if err != nil {
		metrics.TogglesTotal.WithLabelValues("error").Inc()
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("toggle failed", "habit_id", habitID, "date", date, "error", err)
		}
		return model.StatusUnknown, storageErr("toggle", err)
	}

	metrics.TogglesTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("completion toggled", "habit_id", habitID, "date", date, "status", next)
	return next, nil
}

// EnsureMaterialized records "not done" for habitID on date unless a fact
// already exists. A created fact is mirrored into the cache in the same
// transaction.
func (s *Service) EnsureMaterialized(ctx context.Context, habitID int64, date string) error {
	_, err := s.ensureMaterialized(ctx, habitID, date)
	return err
}

func (s *Service) ensureMaterialized(ctx context.Context, habitID int64, date string) (bool, error) {
	sl, err := locate("date", date)
	if err != nil {
		return false, err
	}
	now := s.cal.Now()

	var created bool
	err = store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		h, err := s.habits.WithTx(tx).GetByID(ctx, habitID)
		if err != nil {
			return err
		}
		if h == nil {
			return notFound(habitID)
		}
		created, err = s.ledger.WithTx(tx).EnsureMaterialized(ctx, habitID, sl.date, model.StatusNotDone, now)
		if err != nil || !created {
			return err
		}
		return s.heatmap.WithTx(tx).SetDay(ctx, habitID, sl.weekStart, sl.weekday, model.StatusNotDone, now)
	})
	if err != nil {
		return false, storageErr("materialize", err)
	}
	if created {
		metrics.MaterializedTotal.Inc()
		s.logger.Debug("fact materialized", "habit_id", habitID, "date", date)
	}
	return created, nil
}

// GetStatus reads the ledger directly. A day with no fact is unknown.
func (s *Service) GetStatus(ctx context.Context, habitID int64, date string) (model.Status, error) {
	if _, err := locate("date", date); err != nil {
		return model.StatusUnknown, err
	}
	if _, err := s.GetHabit(ctx, habitID); err != nil {
		return model.StatusUnknown, err
	}
	st, err := s.ledger.GetStatus(ctx, habitID, date)
	if err != nil {
		return model.StatusUnknown, storageErr("get status", err)
	}
	return st, nil
}
