package period

import (
	"testing"
	"time"
)

func TestDailyKey(t *testing.T) {
	tm := time.Date(2025, 6, 14, 23, 59, 59, 0, time.UTC)
	if got := DailyKey(tm); got != "2025-06-14" {
		t.Errorf("expected 2025-06-14, got %s", got)
	}
}

func TestDailyKey_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	tm := time.Date(2025, 6, 15, 2, 0, 0, 0, loc) // 2025-06-14T21:00Z
	if got := DailyKey(tm); got != "2025-06-14" {
		t.Errorf("expected 2025-06-14, got %s", got)
	}
}

func TestMonthlyKey(t *testing.T) {
	tm := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if got := MonthlyKey(tm); got != "2025-12" {
		t.Errorf("expected 2025-12, got %s", got)
	}
}

func TestDayBounds(t *testing.T) {
	tm := time.Date(2025, 6, 14, 13, 30, 0, 0, time.UTC)
	start, end := DayBounds(tm)
	if !start.Equal(time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %v", start)
	}
	if !end.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end: %v", end)
	}
}

func TestMonthBounds_YearRollover(t *testing.T) {
	tm := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	start, end := MonthBounds(tm)
	if !start.Equal(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %v", start)
	}
	if !end.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end: %v", end)
	}
}
