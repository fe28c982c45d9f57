package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

// HeatmapStore owns weekly_aggregates: one seven-slot row per habit and
// Monday, derived from the ledger and written alongside it.
type HeatmapStore struct {
	db dbtx
}

func NewHeatmapStore(db *sql.DB) *HeatmapStore {
	return &HeatmapStore{db: db}
}

func (s *HeatmapStore) WithTx(tx *sql.Tx) *HeatmapStore {
	return &HeatmapStore{db: tx}
}

// GetWeek returns nil when no row exists for the week.
func (s *HeatmapStore) GetWeek(ctx context.Context, habitID int64, weekStart string) (*model.Week, error) {
	var w model.Week
	err := s.db.QueryRowContext(ctx,
		`SELECT statuses FROM weekly_aggregates WHERE habit_id = ? AND week_start = ?`, habitID, weekStart,
	).Scan(&w)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get week: %w", err)
	}
	return &w, nil
}

// SetDay writes one slot of a week row, creating an all-unknown row first
// when the week has none. It never touches more than one row.
func (s *HeatmapStore) SetDay(ctx context.Context, habitID int64, weekStart string, weekday int, status model.Status, now time.Time) error {
	if weekday < 0 || weekday >= calendar.DaysPerWeek {
		return fmt.Errorf("set day: weekday index %d out of range", weekday)
	}

	existing, err := s.GetWeek(ctx, habitID, weekStart)
	if err != nil {
		return err
	}

	var week model.Week
	if existing != nil {
		week = *existing
	}
	week[weekday] = status

	if existing != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE weekly_aggregates SET statuses = ?, updated_at = ? WHERE habit_id = ? AND week_start = ?`,
			week, now.UTC(), habitID, weekStart,
		)
		if err != nil {
			return fmt.Errorf("update week: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO weekly_aggregates (habit_id, week_start, statuses, updated_at) VALUES (?, ?, ?, ?)`,
		habitID, weekStart, week, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert week: %w", err)
	}
	return nil
}

const aggregateCols = `habit_id, week_start, statuses, updated_at`

// ListByHabit returns every stored week of a habit, oldest first.
func (s *HeatmapStore) ListByHabit(ctx context.Context, habitID int64) ([]model.WeeklyAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+aggregateCols+` FROM weekly_aggregates WHERE habit_id = ? ORDER BY week_start ASC`, habitID,
	)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	defer rows.Close()

	var weeks []model.WeeklyAggregate
	for rows.Next() {
		var a model.WeeklyAggregate
		if err := rows.Scan(&a.HabitID, &a.WeekStart, &a.Statuses, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan week: %w", err)
		}
		weeks = append(weeks, a)
	}
	return weeks, rows.Err()
}

// ReplaceForHabit drops every stored week of a habit and writes weeks in
// its place. It is the maintenance rebuild path; run it in a transaction.
func (s *HeatmapStore) ReplaceForHabit(ctx context.Context, habitID int64, weeks map[string]model.Week, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM weekly_aggregates WHERE habit_id = ?`, habitID); err != nil {
		return fmt.Errorf("clear weeks: %w", err)
	}
	for weekStart, week := range weeks {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO weekly_aggregates (habit_id, week_start, statuses, updated_at) VALUES (?, ?, ?, ?)`,
			habitID, weekStart, week, now.UTC(),
		); err != nil {
			return fmt.Errorf("insert week: %w", err)
		}
	}
	return nil
}

// HabitWeeks is an active habit with the stored weeks that matched a query,
// keyed by week start.
type HabitWeeks struct {
	Habit model.Habit
	Weeks map[string]model.Week
}

// ListActiveRange returns every active habit, in list order, with its
// stored weeks whose start lies in [from, to]. Empty bounds are open.
// Habits and weeks come from one statement so the result is a single
// snapshot of the cache.
func (s *HeatmapStore) ListActiveRange(ctx context.Context, from, to string) ([]HabitWeeks, error) {
	join := `LEFT JOIN weekly_aggregates a ON a.habit_id = h.id`
	var args []any
	if from != "" {
		join += ` AND a.week_start >= ?`
		args = append(args, from)
	}
	if to != "" {
		join += ` AND a.week_start <= ?`
		args = append(args, to)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitColsH+`, a.week_start, a.statuses
		 FROM habits h `+join+`
		 WHERE h.active = 1
		 ORDER BY `+activeOrder+`, a.week_start ASC`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list active weeks: %w", err)
	}
	defer rows.Close()

	var out []HabitWeeks
	index := make(map[int64]int)
	for rows.Next() {
		var h model.Habit
		var frequency string
		var weekStart sql.NullString
		var week model.Week
		if err := rows.Scan(
			&h.ID, &h.Name, &h.Description, &h.Icon, &h.Color,
			&frequency, &h.Target, &h.Active, &h.SortOrder, &h.CreatedAt,
			&weekStart, &week,
		); err != nil {
			return nil, fmt.Errorf("scan active week: %w", err)
		}
		h.Frequency = model.Frequency(frequency)

		i, ok := index[h.ID]
		if !ok {
			i = len(out)
			index[h.ID] = i
			out = append(out, HabitWeeks{Habit: h, Weeks: make(map[string]model.Week)})
		}
		if weekStart.Valid {
			out[i].Weeks[weekStart.String] = week
		}
	}
	return out, rows.Err()
}

// ListActive is ListActiveRange without bounds.
func (s *HeatmapStore) ListActive(ctx context.Context) ([]HabitWeeks, error) {
	return s.ListActiveRange(ctx, "", "")
}
