package models

import (
	"time"

	"github.com/kevin07696/settlement-service/pkg/timeutil"
)

// Week is an ISO-8601 settlement week. Start is Monday 00:00 UTC and End is
// the last nanosecond of Sunday.
type Week struct {
	ID    string
	Start time.Time
	End   time.Time
}

// ParseWeek parses a "YYYY-Www" identifier.
func ParseWeek(id string) (Week, error) {
	start, end, err := timeutil.ParseISOWeek(id)
	if err != nil {
		return Week{}, err
	}
	return Week{ID: id, Start: start, End: end}, nil
}

// Next returns the following ISO week.
func (w Week) Next() Week {
	start := w.Start.AddDate(0, 0, 7)
	return Week{
		ID:    timeutil.ISOWeekID(start),
		Start: start,
		End:   timeutil.EndOfDay(start.AddDate(0, 0, 6)),
	}
}

// Contains reports whether t falls inside the week, inclusive on both ends.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
