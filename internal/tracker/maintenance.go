package tracker

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/metrics"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
)

// DeriveWeeks replays ledger facts into weekly aggregate rows.
func DeriveWeeks(facts []model.CompletionFact) (map[string]model.Week, error) {
	weeks := make(map[string]model.Week)
	for _, f := range facts {
		ws, err := calendar.WeekStart(f.Date)
		if err != nil {
			return nil, err
		}
		i, _ := calendar.WeekdayIndex(f.Date)
		w := weeks[ws]
		w[i] = f.Status
		weeks[ws] = w
	}
	return weeks, nil
}

// RebuildAggregates discards a habit's cache rows and derives them again
// from its ledger facts.
func (s *Service) RebuildAggregates(ctx context.Context, habitID int64) error {
	var n int
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		h, err := s.habits.WithTx(tx).GetByID(ctx, habitID)
		if err != nil {
			return err
		}
		if h == nil {
			return notFound(habitID)
		}
		facts, err := s.ledger.WithTx(tx).ListByHabit(ctx, habitID)
		if err != nil {
			return err
		}
		weeks, err := DeriveWeeks(facts)
		if err != nil {
			return err
		}
		n = len(weeks)
		return s.heatmap.WithTx(tx).ReplaceForHabit(ctx, habitID, weeks, s.cal.Now())
	})
	if err != nil {
		return storageErr("rebuild aggregates", err)
	}
	metrics.AggregateRebuildsTotal.Inc()
	s.logger.Info("aggregates rebuilt", "habit_id", habitID, "weeks", n)
	return nil
}

// RebuildAll rebuilds the cache of every habit, archived ones included,
// and returns how many were rebuilt.
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
	ids, err := s.habits.ListIDs(ctx)
	if err != nil {
		return 0, storageErr("rebuild aggregates", err)
	}
	for i, id := range ids {
		if err := s.RebuildAggregates(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// VerifyAggregates compares stored cache rows with rows derived from the
// ledger. habitID 0 checks every habit. A missing row and an all-unknown
// row are equivalent.
func (s *Service) VerifyAggregates(ctx context.Context, habitID int64) ([]model.Mismatch, error) {
	if habitID == 0 {
		mismatches, err := s.verifyAll(ctx)
		if err != nil {
			return nil, err
		}
		metrics.AggregateMismatches.Set(float64(len(mismatches)))
		return mismatches, nil
	}

	if _, err := s.GetHabit(ctx, habitID); err != nil {
		return nil, err
	}
	mismatches, err := s.verifyHabit(ctx, habitID)
	if err != nil {
		return nil, storageErr("verify aggregates", err)
	}
	if len(mismatches) > 0 {
		s.logger.Warn("aggregate mismatches found", "habit_id", habitID, "count", len(mismatches))
	}
	return mismatches, nil
}

// CheckAggregates verifies every habit in db, which need not be the live
// database. It leaves the mismatch gauge alone.
func CheckAggregates(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]model.Mismatch, error) {
	return New(db, nil, logger).verifyAll(ctx)
}

func (s *Service) verifyAll(ctx context.Context) ([]model.Mismatch, error) {
	ids, err := s.habits.ListIDs(ctx)
	if err != nil {
		return nil, storageErr("verify aggregates", err)
	}
	mismatches := []model.Mismatch{}
	for _, id := range ids {
		found, err := s.verifyHabit(ctx, id)
		if err != nil {
			return nil, storageErr("verify aggregates", err)
		}
		mismatches = append(mismatches, found...)
	}
	if len(mismatches) > 0 {
		s.logger.Warn("aggregate mismatches found", "habits", len(ids), "count", len(mismatches))
	}
	return mismatches, nil
}

func (s *Service) verifyHabit(ctx context.Context, habitID int64) ([]model.Mismatch, error) {
	var facts []model.CompletionFact
	var stored []model.WeeklyAggregate
	// Both reads inside one transaction so a concurrent toggle cannot land
	// between them.
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		facts, err = s.ledger.WithTx(tx).ListByHabit(ctx, habitID)
		if err != nil {
			return err
		}
		stored, err = s.heatmap.WithTx(tx).ListByHabit(ctx, habitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	derived, err := DeriveWeeks(facts)
	if err != nil {
		return nil, err
	}
	return diffWeeks(habitID, stored, derived), nil
}

func diffWeeks(habitID int64, stored []model.WeeklyAggregate, derived map[string]model.Week) []model.Mismatch {
	storedByWeek := make(map[string]model.Week, len(stored))
	keys := make(map[string]bool, len(stored)+len(derived))
	for _, a := range stored {
		storedByWeek[a.WeekStart] = a.Statuses
		keys[a.WeekStart] = true
	}
	for ws := range derived {
		keys[ws] = true
	}

	out := []model.Mismatch{}
	for ws := range keys {
		sw, hasStored := storedByWeek[ws]
		dw, hasDerived := derived[ws]
		if sw == dw {
			continue
		}
		m := model.Mismatch{HabitID: habitID, WeekStart: ws}
		if hasStored {
			m.Stored = &sw
		}
		if hasDerived {
			m.Derived = &dw
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekStart < out[j].WeekStart })
	return out
}
