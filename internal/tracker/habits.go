package tracker

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
)

func (s *Service) ListActiveHabits(ctx context.Context) ([]model.Habit, error) {
	habits, err := s.habits.ListActive(ctx)
	if err != nil {
		return nil, storageErr("list habits", err)
	}
	return habits, nil
}

func (s *Service) GetHabit(ctx context.Context, id int64) (*model.Habit, error) {
	h, err := s.habits.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr("get habit", err)
	}
	if h == nil {
		return nil, notFound(id)
	}
	return h, nil
}

// CreateHabit appends a new active habit after the current last one.
func (s *Service) CreateHabit(ctx context.Context, in model.HabitInput) (*model.Habit, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, invalid("name", "must not be blank")
	}
	if in.Frequency == "" {
		in.Frequency = model.FrequencyDaily
	}
	if !in.Frequency.Valid() {
		return nil, invalid("frequency", "must be one of daily, weekly, monthly, custom")
	}
	if in.Target < 0 {
		return nil, invalid("target", "must not be negative")
	}

	var created *model.Habit
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := s.habits.WithTx(tx)
		maxOrder, err := hs.MaxActiveOrder(ctx)
		if err != nil {
			return err
		}
		created, err = hs.Create(ctx, in, maxOrder+1, s.cal.Now())
		return err
	})
	if err != nil {
		s.logger.Error("create habit", "error", err)
		return nil, storageErr("create habit", err)
	}
	s.logger.Info("habit created", "habit_id", created.ID, "sort_order", created.SortOrder)
	return created, nil
}

// UpdateHabit changes only the fields set in patch. An empty patch is a
// no-op.
func (s *Service) UpdateHabit(ctx context.Context, id int64, patch model.HabitPatch) error {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return invalid("name", "must not be blank")
		}
		patch.Name = &name
	}
	if patch.Frequency != nil && !patch.Frequency.Valid() {
		return invalid("frequency", "must be one of daily, weekly, monthly, custom")
	}
	if patch.Target != nil && *patch.Target < 0 {
		return invalid("target", "must not be negative")
	}
	if patch.Empty() {
		return nil
	}

	ok, err := s.habits.Update(ctx, id, patch)
	if err != nil {
		return storageErr("update habit", err)
	}
	if !ok {
		return notFound(id)
	}
	return nil
}

// ArchiveHabit hides a habit from every view. Its history and sort order
// are kept.
func (s *Service) ArchiveHabit(ctx context.Context, id int64) error {
	ok, err := s.habits.Archive(ctx, id)
	if err != nil {
		return storageErr("archive habit", err)
	}
	if !ok {
		return notFound(id)
	}
	s.logger.Info("habit archived", "habit_id", id)
	return nil
}

// RestoreHabit reactivates an archived habit at the end of the list and
// reports whether anything changed. Restoring an active habit is a no-op.
func (s *Service) RestoreHabit(ctx context.Context, id int64) (bool, error) {
	var restored bool
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := s.habits.WithTx(tx)
		h, err := hs.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if h == nil {
			return notFound(id)
		}
		if h.Active {
			return nil
		}
		maxOrder, err := hs.MaxActiveOrder(ctx)
		if err != nil {
			return err
		}
		restored, err = hs.Restore(ctx, id, maxOrder+1)
		return err
	})
	if err != nil {
		return false, storageErr("restore habit", err)
	}
	if restored {
		s.logger.Info("habit restored", "habit_id", id)
	}
	return restored, nil
}

// DeleteHabit removes a habit with all of its facts and aggregates.
func (s *Service) DeleteHabit(ctx context.Context, id int64) error {
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		ok, err := s.habits.WithTx(tx).Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(id)
		}
		return nil
	})
	if err != nil {
		return storageErr("delete habit", err)
	}
	s.forgetMaterialized(id)
	s.logger.Info("habit deleted", "habit_id", id)
	return nil
}

// ReorderHabits sets sort_order to position+1 for each id. ids must name
// every active habit exactly once.
func (s *Service) ReorderHabits(ctx context.Context, ids []int64) error {
	err := store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		hs := s.habits.WithTx(tx)
		active, err := hs.ListActive(ctx)
		if err != nil {
			return err
		}
		if err := checkPermutation(active, ids); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return hs.UpdateSortOrder(ctx, ids)
	})
	if err != nil {
		return storageErr("reorder habits", err)
	}
	s.logger.Info("habits reordered", "count", len(ids))
	return nil
}

func checkPermutation(active []model.Habit, ids []int64) error {
	if len(ids) != len(active) {
		return invalid("ids", "must list every active habit exactly once")
	}
	want := make(map[int64]bool, len(active))
	for _, h := range active {
		want[h.ID] = true
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !want[id] {
			return invalid("ids", "contains a habit that is not active")
		}
		if seen[id] {
			return invalid("ids", "contains a duplicate id")
		}
		seen[id] = true
	}
	return nil
}
