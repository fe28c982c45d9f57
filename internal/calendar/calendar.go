// Package calendar holds the date arithmetic shared by the ledger, the
// heatmap cache and the view builders. Dates travel as YYYY-MM-DD strings;
// weeks start on Monday.
package calendar

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Layout is the on-disk and on-wire date format.
const Layout = "2006-01-02"

// DaysPerWeek is the number of slots in a weekly aggregate row.
const DaysPerWeek = 7

var ErrInvalidDate = errors.New("invalid date")

// Clock is the single source of "now". Everything that needs the current
// date takes a Clock instead of reading the wall clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// FixedClock reports a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Calendar resolves "today" for a clock in a fixed location.
type Calendar struct {
	clock Clock
	loc   *time.Location
}

// New returns a Calendar. A nil location means time.Local.
func New(clock Clock, loc *time.Location) *Calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{clock: clock, loc: loc}
}

// Now returns the current instant in the calendar's location.
func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Today returns the local calendar date.
func (c *Calendar) Today() string {
	return Format(c.Now())
}

// CurrentWeekStart returns the Monday of the current week.
func (c *Calendar) CurrentWeekStart() string {
	return Format(WeekStartOf(c.Now()))
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Parse parses a YYYY-MM-DD date into midnight UTC. Using UTC for the
// arithmetic keeps AddDate free of DST surprises.
func Parse(date string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return t, nil
}

// Format renders the calendar date of t.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// WeekStartOf returns midnight of the Monday on or before t, in t's location.
func WeekStartOf(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -weekdayIndex(day))
}

// weekdayIndex maps Go's Sunday=0 weekday onto Monday=0 ... Sunday=6.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekStart returns the Monday on or before date.
func WeekStart(date string) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(WeekStartOf(t)), nil
}

// WeekEnd returns the Sunday closing the week that contains date.
func WeekEnd(date string) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(WeekStartOf(t).AddDate(0, 0, DaysPerWeek-1)), nil
}

// MonthStart returns the first day of date's month.
func MonthStart(date string) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)), nil
}

// MonthEnd returns the last day of date's month.
func MonthEnd(date string) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)), nil
}

// WeekdayIndex returns 0 for Monday through 6 for Sunday.
func WeekdayIndex(date string) (int, error) {
	t, err := Parse(date)
	if err != nil {
		return 0, err
	}
	return weekdayIndex(t), nil
}

// AddDays shifts date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := Parse(date)
	if err != nil {
		return "", err
	}
	return Format(t.AddDate(0, 0, n)), nil
}

// Dates returns the seven dates of the week beginning at weekStart.
func Dates(weekStart string) ([DaysPerWeek]string, error) {
	var out [DaysPerWeek]string
	t, err := Parse(weekStart)
	if err != nil {
		return out, err
	}
	for i := range out {
		out[i] = Format(t.AddDate(0, 0, i))
	}
	return out, nil
}

// WeekStartsBetween lists every Monday from WeekStart(from) through
// WeekStart(to), inclusive. It returns nil when to precedes from.
func WeekStartsBetween(from, to string) ([]string, error) {
	f, err := Parse(from)
	if err != nil {
		return nil, err
	}
	l, err := Parse(to)
	if err != nil {
		return nil, err
	}
	cursor := WeekStartOf(f)
	last := WeekStartOf(l)

	var weeks []string
	for !cursor.After(last) {
		weeks = append(weeks, Format(cursor))
		cursor = cursor.AddDate(0, 0, DaysPerWeek)
	}
	return weeks, nil
}

// SameMonth reports whether two dates fall in the same calendar month.
func SameMonth(a, b string) (bool, error) {
	ta, err := Parse(a)
	if err != nil {
		return false, err
	}
	tb, err := Parse(b)
	if err != nil {
		return false, err
	}
	return ta.Year() == tb.Year() && ta.Month() == tb.Month(), nil
}
