package core

import (
	"fmt"
	"time"
)

// ParseDate parses a YYYY-MM-DD string into a time.Time (date only, at midnight UTC).
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD)", s)
	}
	return t, nil
}

// ParseDatetime parses a "YYYY-MM-DD HH:MM:SS" string in the given timezone.
func ParseDatetime(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DatetimeFmt, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime '%s' (expected YYYY-MM-DD HH:MM:SS)", s)
	}
	return t, nil
}

// DateOnly returns a time.Time with only the date portion (midnight UTC).
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDate formats a time.Time as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateFmt)
}

// MonthRange returns the first and last day of the given calendar month.
func MonthRange(year, month int) (time.Time, time.Time) {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}

// MonthsInRange yields the (year, month) pairs touching [start, end].
func MonthsInRange(start, end time.Time) [][2]int {
	out := make([][2]int, 0)
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(last) {
		out = append(out, [2]int{cur.Year(), int(cur.Month())})
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

// DaysBetween returns the inclusive day count between start and end.
// Both arguments are truncated to date-only before counting.
func DaysBetween(start, end time.Time) int {
	s := DateOnly(start)
	e := DateOnly(end)
	return int(e.Sub(s).Hours()/24) + 1
}

// GetTimeRange returns (start, end) dates representing a period.
// Supported periods: today, yesterday, this-week, last-week, this-month,
// last-month, this-quarter, last-quarter.
func GetTimeRange(period string, now time.Time) (time.Time, time.Time, error) {
	today := DateOnly(now)

	switch period {
	case "today":
		return today, today, nil

	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d, d, nil

	case "this-week":
		// Week starts on Monday
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := today.AddDate(0, 0, -(weekday - 1))
		return start, start.AddDate(0, 0, 6), nil

	case "last-week":
		weekday := int(today.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		startThisWeek := today.AddDate(0, 0, -(weekday - 1))
		start := startThisWeek.AddDate(0, 0, -7)
		return start, start.AddDate(0, 0, 6), nil

	case "this-month":
		first, last := MonthRange(today.Year(), int(today.Month()))
		return first, last, nil

	case "last-month":
		prev := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		first, last := MonthRange(prev.Year(), int(prev.Month()))
		return first, last, nil

	case "this-quarter":
		q := (int(today.Month()) - 1) / 3
		first := time.Date(today.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 3, -1), nil

	case "last-quarter":
		q := (int(today.Month()) - 1) / 3
		var first time.Time
		if q == 0 {
			first = time.Date(today.Year()-1, time.October, 1, 0, 0, 0, 0, time.UTC)
		} else {
			first = time.Date(today.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
		}
		return first, first.AddDate(0, 3, -1), nil
	}

	return time.Time{}, time.Time{}, fmt.Errorf("unknown period: %s", period)
}
