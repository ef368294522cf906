package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

func TestNew(t *testing.T) {
	l, err := New("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New("loud", true)
	assert.Error(t, err)
}

func TestZapAdapter_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewZapAdapter(zap.New(core))

	adapter.Warn("accumulator failed",
		ports.DriverID("d1"),
		ports.Int("attempt", 2),
		ports.Bool("retryable", true),
		ports.Duration("elapsed", 1500*time.Millisecond),
		ports.Money("amount", decimal.RequireFromString("8.7")),
		ports.Err(errors.New("boom")),
	)
	adapter.Debug("debug line")

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "accumulator failed", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "d1", ctx["driver_id"])
	assert.Equal(t, int64(2), ctx["attempt"])
	assert.Equal(t, true, ctx["retryable"])
	assert.Equal(t, 1500*time.Millisecond, ctx["elapsed"])
	assert.Equal(t, "8.70", ctx["amount"])
	assert.Equal(t, "boom", ctx["error"])
}
