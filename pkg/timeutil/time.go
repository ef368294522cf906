// Package timeutil holds the UTC and ISO-week helpers settlement weeks are built on.
package timeutil

import (
	"fmt"
	"time"
)

// Now is the clock services default to. Week boundaries are UTC, so local
// time never leaks into a week ID.
func Now() time.Time {
	return time.Now().UTC()
}

// StartOfDay truncates t to UTC midnight. Payment dates are stored this way.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay is the last nanosecond of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 23, 59, 59, 999999999, time.UTC)
}

// ISOWeekID formats t as an ISO-8601 week identifier, e.g. "2025-W07".
func ISOWeekID(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// ISOWeekBounds returns the Monday 00:00 and Sunday 23:59:59.999999999 UTC
// bounds of the given ISO week.
func ISOWeekBounds(year, week int) (time.Time, time.Time, error) {
	if week < 1 || week > 53 {
		return time.Time{}, time.Time{}, fmt.Errorf("week %d out of range", week)
	}

	// January 4th is always in ISO week 1
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := int(jan4.Weekday()+6) % 7 // days since Monday
	week1Monday := jan4.AddDate(0, 0, -offset)

	start := week1Monday.AddDate(0, 0, (week-1)*7)
	if y, w := start.ISOWeek(); y != year || w != week {
		return time.Time{}, time.Time{}, fmt.Errorf("year %d has no ISO week %d", year, week)
	}

	end := EndOfDay(start.AddDate(0, 0, 6))
	return start, end, nil
}

// ParseISOWeek parses "YYYY-Www" and returns the week bounds.
func ParseISOWeek(id string) (time.Time, time.Time, error) {
	var year, week int
	if _, err := fmt.Sscanf(id, "%4d-W%2d", &year, &week); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse week %q: %w", id, err)
	}
	start, end, err := ISOWeekBounds(year, week)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	// Week IDs are storage keys, so only the canonical spelling is accepted.
	if id != ISOWeekID(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("parse week %q: expected YYYY-Www", id)
	}
	return start, end, nil
}
