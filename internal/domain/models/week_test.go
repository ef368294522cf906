package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeek_Next(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"2025-W07", "2025-W08"},
		{"2024-W52", "2025-W01"},
		{"2020-W53", "2021-W01"},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			w, err := ParseWeek(tt.from)
			require.NoError(t, err)

			next := w.Next()
			want, err := ParseWeek(tt.want)
			require.NoError(t, err)
			assert.Equal(t, want, next)
		})
	}
}

func TestParseWeek_RejectsNonCanonicalIDs(t *testing.T) {
	for _, id := range []string{"2025-W7x", "2025-W 7", "2025-W+7", "2025-w07"} {
		_, err := ParseWeek(id)
		assert.Error(t, err, id)
	}

	w, err := ParseWeek("2025-W07")
	require.NoError(t, err)
	assert.True(t, w.Contains(time.Date(2025, 2, 16, 23, 0, 0, 0, time.UTC)))
}
