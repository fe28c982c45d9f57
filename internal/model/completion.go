package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the state of one habit on one day. The zero value is
// StatusUnknown: no fact has been recorded for that day.
type Status int8

const (
	StatusUnknown Status = iota
	StatusNotDone
	StatusDone
)

// StatusFromInt converts a persisted 0/1 value.
func StatusFromInt(v int64) (Status, error) {
	switch v {
	case 0:
		return StatusNotDone, nil
	case 1:
		return StatusDone, nil
	}
	return StatusUnknown, fmt.Errorf("invalid status value %d", v)
}

// Int returns the persisted 0/1 value. ok is false for StatusUnknown.
func (s Status) Int() (v int, ok bool) {
	switch s {
	case StatusNotDone:
		return 0, true
	case StatusDone:
		return 1, true
	}
	return 0, false
}

func (s Status) Known() bool {
	return s == StatusNotDone || s == StatusDone
}

func (s Status) String() string {
	switch s {
	case StatusNotDone:
		return "0"
	case StatusDone:
		return "1"
	}
	return "unknown"
}

// MarshalJSON encodes unknown as null and known values as 0 or 1.
func (s Status) MarshalJSON() ([]byte, error) {
	if v, ok := s.Int(); ok {
		return []byte{byte('0' + v)}, nil
	}
	return []byte("null"), nil
}

func (s *Status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = StatusUnknown
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	st, err := StatusFromInt(v)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// CompletionFact is one ledger row.
type CompletionFact struct {
	ID        int64      `json:"id"`
	HabitID   int64      `json:"habit_id"`
	Date      string     `json:"date"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Week holds the seven statuses of a Monday-aligned week, Monday first.
// It is stored as a JSON array such as [1,null,0,null,null,null,null].
type Week [7]Status

// Value implements driver.Valuer.
func (w Week) Value() (driver.Value, error) {
	data, err := json.Marshal([7]Status(w))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (w *Week) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	case nil:
		*w = Week{}
		return nil
	default:
		return fmt.Errorf("scan week: unsupported type %T", src)
	}

	var slots []Status
	if err := json.Unmarshal(data, &slots); err != nil {
		return fmt.Errorf("scan week: %w", err)
	}
	if len(slots) != len(w) {
		return fmt.Errorf("scan week: expected %d slots, got %d", len(w), len(slots))
	}
	copy(w[:], slots)
	return nil
}

// WeeklyAggregate is one heatmap cache row.
type WeeklyAggregate struct {
	HabitID   int64     `json:"habit_id"`
	WeekStart string    `json:"week_start"`
	Statuses  Week      `json:"statuses"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mismatch describes a cache row that disagrees with the ledger.
type Mismatch struct {
	HabitID   int64  `json:"habit_id"`
	WeekStart string `json:"week_start"`
	Stored    *Week  `json:"stored"`
	Derived   *Week  `json:"derived"`
}
