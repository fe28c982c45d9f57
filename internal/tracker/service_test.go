package tracker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/database"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

const (
	u = model.StatusUnknown
	n = model.StatusNotDone
	d = model.StatusDone
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*Service, *calendar.FixedClock, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := calendar.NewFixedClock(monday)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, calendar.New(clock, time.UTC), logger), clock, db
}

func mustCreate(t *testing.T, s *Service, name string) *model.Habit {
	t.Helper()
	h, err := s.CreateHabit(context.Background(), model.HabitInput{Name: name})
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return h
}

func mustToggle(t *testing.T, s *Service, id int64, date string, believed model.Status) model.Status {
	t.Helper()
	st, err := s.Toggle(context.Background(), id, date, believed)
	if err != nil {
		t.Fatalf("toggle %d on %s: %v", id, date, err)
	}
	return st
}

func TestCreateHabitDefaultsAndOrder(t *testing.T) {
	s, _, _ := setupService(t)

	a := mustCreate(t, s, "  Read  ")
	if a.Name != "Read" {
		t.Errorf("name = %q, want trimmed %q", a.Name, "Read")
	}
	if a.Frequency != model.FrequencyDaily {
		t.Errorf("frequency = %q, want daily", a.Frequency)
	}
	if a.SortOrder != 1 {
		t.Errorf("first order = %d, want 1", a.SortOrder)
	}
	b := mustCreate(t, s, "Run")
	if b.SortOrder != 2 {
		t.Errorf("second order = %d, want 2", b.SortOrder)
	}
	if !a.CreatedAt.Equal(monday) {
		t.Errorf("created_at = %v, want %v", a.CreatedAt, monday)
	}
}

func TestCreateHabitValidation(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    model.HabitInput
		field string
	}{
		{"blank name", model.HabitInput{Name: "   "}, "name"},
		{"bad frequency", model.HabitInput{Name: "x", Frequency: "hourly"}, "frequency"},
		{"negative target", model.HabitInput{Name: "x", Target: -1}, "target"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateHabit(ctx, tt.in)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}

	habits, _ := s.ListActiveHabits(ctx)
	if len(habits) != 0 {
		t.Errorf("rejected input persisted %d habits", len(habits))
	}
}

func TestUpdateHabit(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()
	h := mustCreate(t, s, "Read")

	color := "#22c55e"
	if err := s.UpdateHabit(ctx, h.ID, model.HabitPatch{Color: &color}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetHabit(ctx, h.ID)
	if got.Color != color || got.Name != "Read" {
		t.Errorf("after patch = %+v", got)
	}

	blank := " "
	var ve *ValidationError
	if err := s.UpdateHabit(ctx, h.ID, model.HabitPatch{Name: &blank}); !errors.As(err, &ve) {
		t.Errorf("blank name err = %v, want ValidationError", err)
	}

	if err := s.UpdateHabit(ctx, h.ID, model.HabitPatch{}); err != nil {
		t.Errorf("empty patch err = %v, want nil", err)
	}

	if err := s.UpdateHabit(ctx, 9999, model.HabitPatch{Color: &color}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing habit err = %v, want ErrNotFound", err)
	}
}

func TestReorderScenario(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A")
	b := mustCreate(t, s, "B")
	c := mustCreate(t, s, "C")

	if err := s.ReorderHabits(ctx, []int64{c.ID, a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	habits, err := s.ListActiveHabits(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []struct {
		id    int64
		order int
	}{{c.ID, 1}, {a.ID, 2}, {b.ID, 3}}
	for i, w := range want {
		if habits[i].ID != w.id || habits[i].SortOrder != w.order {
			t.Errorf("habits[%d] = %d/%d, want %d/%d", i, habits[i].ID, habits[i].SortOrder, w.id, w.order)
		}
	}
}

func TestReorderRejectsPartialList(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A")
	b := mustCreate(t, s, "B")
	c := mustCreate(t, s, "C")
	archived := mustCreate(t, s, "Z")
	s.ArchiveHabit(ctx, archived.ID)

	cases := map[string][]int64{
		"omission":  {b.ID, a.ID},
		"duplicate": {a.ID, a.ID, b.ID},
		"archived":  {a.ID, b.ID, archived.ID},
		"unknown":   {a.ID, b.ID, 9999},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			var ve *ValidationError
			if err := s.ReorderHabits(ctx, ids); !errors.As(err, &ve) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}

	habits, _ := s.ListActiveHabits(ctx)
	for i, id := range []int64{a.ID, b.ID, c.ID} {
		if habits[i].ID != id || habits[i].SortOrder != i+1 {
			t.Errorf("rejected reorder changed habits[%d] to %d/%d", i, habits[i].ID, habits[i].SortOrder)
		}
	}
}

func TestReorderEmptyWithNoActiveHabits(t *testing.T) {
	s, _, _ := setupService(t)
	if err := s.ReorderHabits(context.Background(), nil); err != nil {
		t.Errorf("empty reorder err = %v, want nil", err)
	}
}

func TestArchiveRestore(t *testing.T) {
	s, _, _ := setupService(t)
	ctx := context.Background()
	a := mustCreate(t, s, "A")
	b := mustCreate(t, s, "B")

	if err := s.ArchiveHabit(ctx, a.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	mustCreate(t, s, "C")

	restored, err := s.RestoreHabit(ctx, a.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored {
		t.Error("restore of archived habit reported no change")
	}
	habits, _ := s.ListActiveHabits(ctx)
	if len(habits) != 3 {
		t.Fatalf("active = %d, want 3", len(habits))
	}
	// Archiving A left a gap at 1; C took 3, so A comes back at 4.
	last := habits[2]
	if last.ID != a.ID || last.SortOrder != 4 {
		t.Errorf("restored habit = %d/%d, want %d at order 4", last.ID, last.SortOrder, a.ID)
	}
	if habits[0].ID != b.ID {
		t.Errorf("first = %d, want %d", habits[0].ID, b.ID)
	}

	restored, err = s.RestoreHabit(ctx, a.ID)
	if err != nil || restored {
		t.Errorf("restore of active habit = %v, %v; want false, nil", restored, err)
	}
	if again, _ := s.GetHabit(ctx, a.ID); again.SortOrder != 4 {
		t.Errorf("order after second restore = %d, want 4", again.SortOrder)
	}
	if err := s.ArchiveHabit(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("archive missing err = %v, want ErrNotFound", err)
	}
	if _, err := s.RestoreHabit(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("restore missing err = %v, want ErrNotFound", err)
	}
}

func TestDeleteMissingHabit(t *testing.T) {
	s, _, _ := setupService(t)
	if err := s.DeleteHabit(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	s, _, db := setupService(t)
	h := mustCreate(t, s, "A")
	db.Close()

	_, err := s.Toggle(context.Background(), h.ID, "2024-03-04", u)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if se.Op != "toggle" || se.Unwrap() == nil {
		t.Errorf("storage error = %+v", se)
	}
}
