package calendar

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2024-01-01", "2024-01-01"}, // Monday
		{"2024-01-07", "2024-01-01"}, // Sunday
		{"2024-01-03", "2024-01-01"},
		{"2024-03-04", "2024-03-04"},
		{"2024-03-01", "2024-02-26"}, // crosses a month
		{"2023-01-01", "2022-12-26"}, // crosses a year
	}
	for _, tt := range tests {
		got, err := WeekStart(tt.date)
		if err != nil {
			t.Fatalf("WeekStart(%q): %v", tt.date, err)
		}
		if got != tt.want {
			t.Errorf("WeekStart(%q) = %q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestWeekEnd(t *testing.T) {
	got, err := WeekEnd("2024-01-03")
	if err != nil {
		t.Fatalf("WeekEnd: %v", err)
	}
	if got != "2024-01-07" {
		t.Errorf("WeekEnd = %q, want %q", got, "2024-01-07")
	}
}

func TestMonthBounds(t *testing.T) {
	tests := []struct {
		date, start, end string
	}{
		{"2024-02-15", "2024-02-01", "2024-02-29"},
		{"2023-02-01", "2023-02-01", "2023-02-28"},
		{"2024-12-31", "2024-12-01", "2024-12-31"},
	}
	for _, tt := range tests {
		start, err := MonthStart(tt.date)
		if err != nil {
			t.Fatalf("MonthStart: %v", err)
		}
		end, err := MonthEnd(tt.date)
		if err != nil {
			t.Fatalf("MonthEnd: %v", err)
		}
		if start != tt.start || end != tt.end {
			t.Errorf("bounds(%q) = %q..%q, want %q..%q", tt.date, start, end, tt.start, tt.end)
		}
	}
}

func TestWeekdayIndex(t *testing.T) {
	want := map[string]int{
		"2024-03-04": 0,
		"2024-03-06": 2,
		"2024-03-10": 6,
	}
	for date, idx := range want {
		got, err := WeekdayIndex(date)
		if err != nil {
			t.Fatalf("WeekdayIndex(%q): %v", date, err)
		}
		if got != idx {
			t.Errorf("WeekdayIndex(%q) = %d, want %d", date, got, idx)
		}
	}
}

func TestMalformedDate(t *testing.T) {
	for _, bad := range []string{"", "2024-1-1", "2024-02-30", "yesterday", "2024/01/01"} {
		if _, err := WeekStart(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("WeekStart(%q) err = %v, want ErrInvalidDate", bad, err)
		}
	}
}

func TestWeekStartsBetween(t *testing.T) {
	// March 2024 begins on a Friday and ends on a Sunday.
	got, err := WeekStartsBetween("2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("WeekStartsBetween: %v", err)
	}
	want := []string{"2024-02-26", "2024-03-04", "2024-03-11", "2024-03-18", "2024-03-25"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("week starts mismatch (-want +got):\n%s", diff)
	}

	empty, err := WeekStartsBetween("2024-03-31", "2024-03-01")
	if err != nil {
		t.Fatalf("WeekStartsBetween reversed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("reversed range = %v, want empty", empty)
	}
}

func TestDates(t *testing.T) {
	got, err := Dates("2024-02-26")
	if err != nil {
		t.Fatalf("Dates: %v", err)
	}
	want := [DaysPerWeek]string{"2024-02-26", "2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02", "2024-03-03"}
	if got != want {
		t.Errorf("Dates = %v, want %v", got, want)
	}
}

func TestCalendarTodayUsesLocation(t *testing.T) {
	// 23:30 UTC on Sunday is already Monday in Tokyo.
	instant := time.Date(2024, 3, 3, 23, 30, 0, 0, time.UTC)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	utc := New(ClockFunc(func() time.Time { return instant }), time.UTC)
	if got := utc.Today(); got != "2024-03-03" {
		t.Errorf("UTC today = %q, want %q", got, "2024-03-03")
	}
	if got := utc.CurrentWeekStart(); got != "2024-02-26" {
		t.Errorf("UTC week start = %q, want %q", got, "2024-02-26")
	}

	jp := New(ClockFunc(func() time.Time { return instant }), tokyo)
	if got := jp.Today(); got != "2024-03-04" {
		t.Errorf("Tokyo today = %q, want %q", got, "2024-03-04")
	}
	if got := jp.CurrentWeekStart(); got != "2024-03-04" {
		t.Errorf("Tokyo week start = %q, want %q", got, "2024-03-04")
	}
}

func TestSameMonth(t *testing.T) {
	same, err := SameMonth("2024-02-26", "2024-03-04")
	if err != nil {
		t.Fatalf("SameMonth: %v", err)
	}
	if same {
		t.Error("2024-02-26 and 2024-03-04 reported as same month")
	}
}

func TestFixedClockAdvance(t *testing.T) {
	clock := NewFixedClock(time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC))
	cal := New(clock, time.UTC)
	if got := cal.Today(); got != "2024-03-10" {
		t.Fatalf("today = %s, want 2024-03-10", got)
	}
	if got := cal.CurrentWeekStart(); got != "2024-03-04" {
		t.Errorf("week start = %s, want 2024-03-04", got)
	}

	clock.Advance(2 * time.Minute)
	if got := cal.Today(); got != "2024-03-11" {
		t.Errorf("today after midnight = %s, want 2024-03-11", got)
	}
	if got := cal.CurrentWeekStart(); got != "2024-03-11" {
		t.Errorf("week start after midnight = %s, want 2024-03-11", got)
	}
}
