package tracker

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/metrics"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
)

// TodayView lists every active habit with its status for today. Habits
// without a fact yet get one recorded as not done, so every entry comes
// back 0 or 1.
func (s *Service) TodayView(ctx context.Context) ([]model.TodayEntry, error) {
	timer := prometheus.NewTimer(metrics.ViewDuration.WithLabelValues("today"))
	defer timer.ObserveDuration()

	today := s.cal.Today()
	habits, err := s.habits.ListActive(ctx)
	if err != nil {
		return nil, storageErr("today view", err)
	}
	for _, h := range habits {
		if err := s.materializeOnce(ctx, today, h.ID); err != nil {
			return nil, err
		}
	}

	entries, err := s.ledger.ListActiveOn(ctx, today)
	if err != nil {
		return nil, storageErr("today view", err)
	}
	for i := range entries {
		if entries[i].Status.Known() {
			continue
		}
		// Created after the habit list above was read.
		id := entries[i].Habit.ID
		if err := s.materializeOnce(ctx, today, id); err != nil {
			return nil, err
		}
		st, err := s.ledger.GetStatus(ctx, id, today)
		if err != nil {
			return nil, storageErr("today view", err)
		}
		entries[i].Status = st
	}
	if entries == nil {
		entries = []model.TodayEntry{}
	}
	return entries, nil
}

func (s *Service) materializeOnce(ctx context.Context, day string, habitID int64) error {
	if !s.needsMaterialize(day, habitID) {
		return nil
	}
	_, err := s.ensureMaterialized(ctx, habitID, day)
	if errors.Is(err, ErrNotFound) {
		// Deleted since it was listed.
		return nil
	}
	if err != nil {
		return err
	}
	s.markMaterialized(day, habitID)
	return nil
}

// WeekView returns the seven days of the week containing weekStart for
// every active habit. An empty weekStart means the current week. Weeks
// with no cache row read as all unknown.
func (s *Service) WeekView(ctx context.Context, weekStart string) ([]model.HabitWeek, error) {
	timer := prometheus.NewTimer(metrics.ViewDuration.WithLabelValues("week"))
	defer timer.ObserveDuration()

	ws := s.cal.CurrentWeekStart()
	if weekStart != "" {
		sl, err := locate("start", weekStart)
		if err != nil {
			return nil, err
		}
		ws = sl.weekStart
	}
	dates, err := calendar.Dates(ws)
	if err != nil {
		return nil, err
	}

	rows, err := s.heatmap.ListActiveRange(ctx, ws, ws)
	if err != nil {
		return nil, storageErr("week view", err)
	}

	out := make([]model.HabitWeek, 0, len(rows))
	for _, r := range rows {
		week := r.Weeks[ws]
		hw := model.HabitWeek{Habit: r.Habit, WeekStart: ws}
		for i := range hw.Days {
			hw.Days[i] = model.Day{Date: dates[i], Status: week[i]}
		}
		out = append(out, hw)
	}
	return out, nil
}

// MonthView returns the heatmap grid of the month containing anchor. The
// grid spans whole weeks; cells that spill into the neighbouring months
// are flagged out of month and always unknown.
func (s *Service) MonthView(ctx context.Context, anchor string) (*model.GridView, error) {
	timer := prometheus.NewTimer(metrics.ViewDuration.WithLabelValues("month"))
	defer timer.ObserveDuration()

	if anchor == "" {
		anchor = s.cal.Today()
	}
	if _, err := locate("anchor", anchor); err != nil {
		return nil, err
	}
	first, _ := calendar.MonthStart(anchor)
	last, _ := calendar.MonthEnd(anchor)
	starts, err := calendar.WeekStartsBetween(first, last)
	if err != nil {
		return nil, err
	}
	from, to := starts[0], starts[len(starts)-1]
	ref := starts[len(starts)/2]

	rows, err := s.heatmap.ListActiveRange(ctx, from, to)
	if err != nil {
		return nil, storageErr("month view", err)
	}

	inMonth := func(date string) bool {
		same, _ := calendar.SameMonth(date, ref)
		return same
	}
	view := &model.GridView{
		Kind:       model.GridMonth,
		Anchor:     anchor,
		WeekStarts: starts,
		Habits:     make([]model.HabitGrid, 0, len(rows)),
	}
	for _, r := range rows {
		grid, err := buildGrid(r, starts, inMonth)
		if err != nil {
			return nil, err
		}
		view.Habits = append(view.Habits, grid)
	}
	return view, nil
}

// OverallView returns each active habit's whole history, from the week
// it was created (or its earliest cached week) through the current week.
func (s *Service) OverallView(ctx context.Context) (*model.GridView, error) {
	timer := prometheus.NewTimer(metrics.ViewDuration.WithLabelValues("overall"))
	defer timer.ObserveDuration()

	rows, err := s.heatmap.ListActive(ctx)
	if err != nil {
		return nil, storageErr("overall view", err)
	}

	current := s.cal.CurrentWeekStart()
	always := func(string) bool { return true }
	view := &model.GridView{
		Kind:   model.GridOverall,
		Habits: make([]model.HabitGrid, 0, len(rows)),
	}
	for _, r := range rows {
		from, to := s.historyBounds(r, current)
		starts, err := calendar.WeekStartsBetween(from, to)
		if err != nil {
			return nil, err
		}
		grid, err := buildGrid(r, starts, always)
		if err != nil {
			return nil, err
		}
		view.Habits = append(view.Habits, grid)
	}
	return view, nil
}

func (s *Service) historyBounds(r store.HabitWeeks, current string) (from, to string) {
	from = calendar.Format(calendar.WeekStartOf(r.Habit.CreatedAt.In(s.cal.Location())))
	to = current
	for ws := range r.Weeks {
		if ws < from {
			from = ws
		}
		if ws > to {
			to = ws
		}
	}
	return from, to
}

func buildGrid(r store.HabitWeeks, starts []string, inMonth func(string) bool) (model.HabitGrid, error) {
	grid := model.HabitGrid{
		Habit:      r.Habit,
		WeekStarts: starts,
		Entries:    make([][7]model.Cell, len(starts)),
	}
	for w, ws := range starts {
		dates, err := calendar.Dates(ws)
		if err != nil {
			return grid, err
		}
		week := r.Weeks[ws]
		for i, date := range dates {
			cell := model.Cell{Date: date, InMonth: inMonth(date)}
			if cell.InMonth {
				cell.Status = week[i]
			}
			grid.Entries[w][i] = cell
		}
	}
	return grid, nil
}
