package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tct123/open-source-habit-tracker-app/internal/model"
)

type HabitStore struct {
	db dbtx
}

func NewHabitStore(db *sql.DB) *HabitStore {
	return &HabitStore{db: db}
}

// WithTx returns a copy of the store bound to tx.
func (s *HabitStore) WithTx(tx *sql.Tx) *HabitStore {
	return &HabitStore{db: tx}
}

func scanHabit(scanner interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	var frequency string
	err := scanner.Scan(
		&h.ID, &h.Name, &h.Description, &h.Icon, &h.Color,
		&frequency, &h.Target, &h.Active, &h.SortOrder, &h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Frequency = model.Frequency(frequency)
	return &h, nil
}

const habitCols = `id, name, description, icon, color, frequency, target, active, sort_order, created_at`

// habitColsH is habitCols qualified for queries that alias habits as h.
const habitColsH = `h.id, h.name, h.description, h.icon, h.color, h.frequency, h.target, h.active, h.sort_order, h.created_at`

// activeOrder is the canonical ordering of the active habit list.
const activeOrder = `h.sort_order ASC, h.id DESC`

func (s *HabitStore) ListActive(ctx context.Context) ([]model.Habit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+habitColsH+` FROM habits h WHERE h.active = 1 ORDER BY `+activeOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("list active habits: %w", err)
	}
	defer rows.Close()

	var habits []model.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// ListIDs returns the id of every habit, archived ones included.
func (s *HabitStore) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM habits ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list habit ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan habit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *HabitStore) GetByID(ctx context.Context, id int64) (*model.Habit, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+habitCols+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

// MaxActiveOrder returns the largest sort order among active habits, or 0.
func (s *HabitStore) MaxActiveOrder(ctx context.Context) (int, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) FROM habits WHERE active = 1`,
	).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("max sort order: %w", err)
	}
	return maxOrder, nil
}

func (s *HabitStore) Create(ctx context.Context, in model.HabitInput, sortOrder int, createdAt time.Time) (*model.Habit, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO habits (name, description, icon, color, frequency, target, active, sort_order, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		in.Name, in.Description, in.Icon, in.Color, string(in.Frequency), in.Target, sortOrder, createdAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert habit: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Update applies the non-nil fields of patch. It reports whether a row
// matched.
func (s *HabitStore) Update(ctx context.Context, id int64, patch model.HabitPatch) (bool, error) {
	var sets []string
	var args []any
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *patch.Icon)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.Frequency != nil {
		sets = append(sets, "frequency = ?")
		args = append(args, string(*patch.Frequency))
	}
	if patch.Target != nil {
		sets = append(sets, "target = ?")
		args = append(args, *patch.Target)
	}
	if len(sets) == 0 {
		return true, nil
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE habits SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return false, fmt.Errorf("update habit: %w", err)
	}
	return affected(result)
}

// Archive flips active to false. The sort order is left as it was.
func (s *HabitStore) Archive(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE habits SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("archive habit: %w", err)
	}
	return affected(result)
}

// Restore reactivates an archived habit at the given sort order.
func (s *HabitStore) Restore(ctx context.Context, id int64, sortOrder int) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE habits SET active = 1, sort_order = ? WHERE id = ?`, sortOrder, id,
	)
	if err != nil {
		return false, fmt.Errorf("restore habit: %w", err)
	}
	return affected(result)
}

// Delete removes a habit together with its ledger and heatmap rows. Run it
// inside a transaction so the three deletes land together.
func (s *HabitStore) Delete(ctx context.Context, id int64) (bool, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM weekly_aggregates WHERE habit_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete habit aggregates: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM completion_facts WHERE habit_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete habit facts: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete habit: %w", err)
	}
	return affected(result)
}

// UpdateSortOrder assigns order = position+1 to each id.
func (s *HabitStore) UpdateSortOrder(ctx context.Context, ids []int64) error {
	for i, id := range ids {
		if _, err := s.db.ExecContext(ctx, `UPDATE habits SET sort_order = ? WHERE id = ?`, i+1, id); err != nil {
			return fmt.Errorf("update sort order: %w", err)
		}
	}
	return nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
