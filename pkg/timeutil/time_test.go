package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestStartOfDay(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "midnight UTC",
			input:    time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
			expected: "2025-11-20 00:00:00 +0000 UTC",
		},
		{
			name:     "noon UTC",
			input:    time.Date(2025, 11, 20, 12, 30, 45, 0, time.UTC),
			expected: "2025-11-20 00:00:00 +0000 UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StartOfDay(tt.input)

			if result.String() != tt.expected {
				t.Errorf("StartOfDay() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestEndOfDay(t *testing.T) {
	result := EndOfDay(time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC))
	expected := time.Date(2025, 11, 20, 23, 59, 59, 999999999, time.UTC)

	if !result.Equal(expected) {
		t.Errorf("EndOfDay() = %v, want %v", result, expected)
	}
}

func TestParseISOWeek(t *testing.T) {
	tests := []struct {
		id        string
		wantStart time.Time
		wantErr   bool
	}{
		{id: "2025-W01", wantStart: time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)},
		{id: "2025-W07", wantStart: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
		{id: "2020-W53", wantStart: time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC)},
		{id: "2025-W53", wantErr: true}, // 2025 has 52 ISO weeks
		{id: "2025-W00", wantErr: true},
		{id: "2025-W7", wantErr: true},
		{id: "2025-W7x", wantErr: true},
		{id: "2025-W 7", wantErr: true},
		{id: "2025-W+7", wantErr: true},
		{id: "+025-W07", wantErr: true},
		{id: "2025-W07 ", wantErr: true},
		{id: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			start, end, err := ParseISOWeek(tt.id)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseISOWeek(%q) expected error", tt.id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseISOWeek(%q) unexpected error: %v", tt.id, err)
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			wantEnd := EndOfDay(tt.wantStart.AddDate(0, 0, 6))
			if !end.Equal(wantEnd) {
				t.Errorf("end = %v, want %v", end, wantEnd)
			}
		})
	}
}

func TestISOWeekID_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 2, 12, 15, 0, 0, 0, time.UTC)
	id := ISOWeekID(ts)
	if id != "2025-W07" {
		t.Fatalf("ISOWeekID() = %s, want 2025-W07", id)
	}

	start, end, err := ParseISOWeek(id)
	if err != nil {
		t.Fatalf("ParseISOWeek(%q): %v", id, err)
	}
	if ts.Before(start) || ts.After(end) {
		t.Errorf("%v not within [%v, %v]", ts, start, end)
	}
}
