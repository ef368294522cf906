package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy maps a zero-based attempt number to the pause before the next try.
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (by Multiplier) from BaseDelay up to MaxDelay and
// spreads each delay by up to ±Jitter of itself.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64

	// rnd returns a value in [0,1). nil uses math/rand.
	rnd func() float64
}

// CleanupBackoff paces deletes of orphaned evidence objects after a failed
// commit: roughly 200ms, 400ms, 800ms, then 1s.
func CleanupBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := math.Min(
		float64(eb.BaseDelay)*math.Pow(eb.Multiplier, float64(attempt)),
		float64(eb.MaxDelay),
	)
	if eb.Jitter > 0 {
		rnd := eb.rnd
		if rnd == nil {
			rnd = rand.Float64
		}
		delay += (rnd()*2 - 1) * delay * eb.Jitter
	}

	if delay < 0 {
		return eb.BaseDelay
	}
	return time.Duration(delay)
}

// FixedBackoff waits Delay between every attempt.
type FixedBackoff struct {
	Delay time.Duration
}

func (fb *FixedBackoff) NextDelay(int) time.Duration {
	return fb.Delay
}

// Retry calls fn up to attempts times, sleeping per strategy between
// failures. It stops early when ctx is done and returns the last error.
func Retry(ctx context.Context, attempts int, strategy BackoffStrategy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(strategy.NextDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt+1, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
