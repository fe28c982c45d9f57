package model

// TodayEntry pairs an active habit with its materialized status for today.
type TodayEntry struct {
	Habit  Habit  `json:"habit"`
	Date   string `json:"date"`
	Status Status `json:"status"`
}

type Day struct {
	Date   string `json:"date"`
	Status Status `json:"status"`
}

// HabitWeek is one row of the weekly view.
type HabitWeek struct {
	Habit     Habit  `json:"habit"`
	WeekStart string `json:"week_start"`
	Days      [7]Day `json:"days"`
}

// Cell is one slot of a month or overall grid. Cells outside the viewed
// month carry InMonth=false and an unknown status.
type Cell struct {
	Date    string `json:"date"`
	Status  Status `json:"status"`
	InMonth bool   `json:"in_month"`
}

type HabitGrid struct {
	Habit      Habit     `json:"habit"`
	WeekStarts []string  `json:"week_starts"`
	Entries    [][7]Cell `json:"entries"`
}

type GridKind string

const (
	GridMonth   GridKind = "month"
	GridOverall GridKind = "overall"
)

// GridView is the month or all-time heatmap for every active habit.
type GridView struct {
	Kind       GridKind    `json:"kind"`
	Anchor     string      `json:"anchor,omitempty"`
	WeekStarts []string    `json:"week_starts,omitempty"`
	Habits     []HabitGrid `json:"habits"`
}
