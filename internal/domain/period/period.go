// Package period derives calendar bucket keys for spend accounting.
// Rollover needs no migration: a new day or month simply addresses fresh
// keys, and stale keys age out via TTL.
package period

import "time"

// Period selects a spend accumulation window.
type Period string

const (
	// Day accumulates spend per UTC calendar day.
	Day Period = "day"
	// Month accumulates spend per UTC calendar month.
	Month Period = "month"
)

// DailyKey returns the daily bucket key for t, e.g. "2025-06-14".
func DailyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthlyKey returns the monthly bucket key for t, e.g. "2025-06".
func MonthlyKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// DayBounds returns the UTC start and end of the day containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// MonthBounds returns the UTC start and end of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
