package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *clock) {
	c := &clock{t: time.Date(2025, 2, 17, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: maxFailures, Cooldown: 30 * time.Second})
	cb.now = c.now
	return cb, c
}

func fail(context.Context) error { return errors.New("feed down") }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Call(ctx, fail))
	}
	assert.Equal(t, BreakerOpen, cb.State())

	called := false
	err := cb.Call(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	require.NoError(t, cb.Call(ctx, ok))
	_ = cb.Call(ctx, fail)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	cb, c := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	c.t = c.t.Add(31 * time.Second)
	assert.Equal(t, BreakerHalfOpen, cb.State())

	_ = cb.Call(ctx, fail)
	assert.Equal(t, BreakerOpen, cb.State(), "failed trial reopens")

	c.t = c.t.Add(31 * time.Second)
	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_IgnoresCallerCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_DisabledWhenMaxFailuresZero(t *testing.T) {
	cb, _ := newTestBreaker(0)
	for i := 0; i < 10; i++ {
		assert.Error(t, cb.Call(context.Background(), fail))
	}
	assert.Equal(t, BreakerClosed, cb.State())
}
