package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

// LedgerStore owns completion_facts, the source of truth for per-day
// completion. A day without a row is unknown, not "not done".
type LedgerStore struct {
	db dbtx
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) WithTx(tx *sql.Tx) *LedgerStore {
	return &LedgerStore{db: tx}
}

func scanFact(scanner interface{ Scan(...any) error }) (*model.CompletionFact, error) {
	var f model.CompletionFact
	var status int64
	var updatedAt sql.NullTime
	if err := scanner.Scan(&f.ID, &f.HabitID, &f.Date, &status, &f.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	st, err := model.StatusFromInt(status)
	if err != nil {
		return nil, err
	}
	f.Status = st
	if updatedAt.Valid {
		f.UpdatedAt = &updatedAt.Time
	}
	return &f, nil
}

const factCols = `id, habit_id, date, status, created_at, updated_at`

func (s *LedgerStore) Get(ctx context.Context, habitID int64, date string) (*model.CompletionFact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+factCols+` FROM completion_facts WHERE habit_id = ? AND date = ?`, habitID, date,
	)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact: %w", err)
	}
	return f, nil
}

// GetStatus returns StatusUnknown when no fact exists for the day.
func (s *LedgerStore) GetStatus(ctx context.Context, habitID int64, date string) (model.Status, error) {
	f, err := s.Get(ctx, habitID, date)
	if err != nil {
		return model.StatusUnknown, err
	}
	if f == nil {
		return model.StatusUnknown, nil
	}
	return f.Status, nil
}

// UpsertStatus updates the existing fact for (habit, date) or inserts a
// new one. Applying the same status twice leaves the same row.
func (s *LedgerStore) UpsertStatus(ctx context.Context, habitID int64, date string, status model.Status, now time.Time) error {
	v, ok := status.Int()
	if !ok {
		return fmt.Errorf("upsert fact: cannot store status %s", status)
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM completion_facts WHERE habit_id = ? AND date = ?`, habitID, date,
	).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO completion_facts (habit_id, date, status, created_at) VALUES (?, ?, ?, ?)`,
			habitID, date, v, now.UTC(),
		); err != nil {
			return fmt.Errorf("insert fact: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup fact: %w", err)
	default:
		if _, err := s.db.ExecContext(ctx,
			`UPDATE completion_facts SET status = ?, updated_at = ? WHERE id = ?`,
			v, now.UTC(), id,
		); err != nil {
			return fmt.Errorf("update fact: %w", err)
		}
	}
	return nil
}

// EnsureMaterialized inserts a fact with status if none exists for the
// day. It reports whether a row was created.
func (s *LedgerStore) EnsureMaterialized(ctx context.Context, habitID int64, date string, status model.Status, now time.Time) (bool, error) {
	existing, err := s.Get(ctx, habitID, date)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	v, ok := status.Int()
	if !ok {
		return false, fmt.Errorf("materialize fact: cannot store status %s", status)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO completion_facts (habit_id, date, status, created_at) VALUES (?, ?, ?, ?)`,
		habitID, date, v, now.UTC(),
	); err != nil {
		return false, fmt.Errorf("materialize fact: %w", err)
	}
	return true, nil
}

// ListByHabit returns every fact for a habit in date order.
func (s *LedgerStore) ListByHabit(ctx context.Context, habitID int64) ([]model.CompletionFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+factCols+` FROM completion_facts WHERE habit_id = ? ORDER BY date ASC`, habitID,
	)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var facts []model.CompletionFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, *f)
	}
	return facts, rows.Err()
}

// ListActiveOn returns every active habit with its status on date, in list
// order. Habits without a fact for the day come back as StatusUnknown.
func (s *LedgerStore) ListActiveOn(ctx context.Context, date string) ([]model.TodayEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitColsH+`, f.status
		 FROM habits h
		 LEFT JOIN completion_facts f ON f.habit_id = h.id AND f.date = ?
		 WHERE h.active = 1
		 ORDER BY `+activeOrder, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list statuses on %s: %w", date, err)
	}
	defer rows.Close()

	var entries []model.TodayEntry
	for rows.Next() {
		var h model.Habit
		var frequency string
		var status sql.NullInt64
		if err := rows.Scan(
			&h.ID, &h.Name, &h.Description, &h.Icon, &h.Color,
			&frequency, &h.Target, &h.Active, &h.SortOrder, &h.CreatedAt,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		h.Frequency = model.Frequency(frequency)

		entry := model.TodayEntry{Habit: h, Date: date}
		if status.Valid {
			st, err := model.StatusFromInt(status.Int64)
			if err != nil {
				return nil, err
			}
			entry.Status = st
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
