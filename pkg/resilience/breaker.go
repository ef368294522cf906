package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a CircuitBreaker
type BreakerState int

const (
	// BreakerClosed lets calls through
	BreakerClosed BreakerState = iota
	// BreakerOpen fails calls immediately until the cooldown elapses
	BreakerOpen
	// BreakerHalfOpen lets a limited number of trial calls through
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without calling the protected function
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a CircuitBreaker
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker. Zero disables it.
	MaxFailures int
	// Cooldown is how long the breaker stays open before probing
	Cooldown time.Duration
	// HalfOpenTrials is the number of concurrent trials allowed when half-open
	HalfOpenTrials int
}

// CircuitBreaker stops calling a dependency after repeated failures.
// Cancellation by the caller is not counted as a failure.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	state    BreakerState
	failures int
	trials   int
	openedAt time.Time
	now      func() time.Time
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.HalfOpenTrials <= 0 {
		cfg.HalfOpenTrials = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if cb.cfg.MaxFailures <= 0 {
		return fn(ctx)
	}
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(ctx, err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return ErrBreakerOpen
		}
		cb.state = BreakerHalfOpen
		cb.trials = 1
		return nil
	case BreakerHalfOpen:
		if cb.trials >= cb.cfg.HalfOpenTrials {
			return ErrBreakerOpen
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) after(ctx context.Context, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerHalfOpen {
		cb.trials--
	}
	switch {
	case err == nil:
		cb.state = BreakerClosed
		cb.failures = 0
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// caller gave up; says nothing about the dependency
	case cb.state == BreakerHalfOpen:
		cb.trip()
	default:
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			cb.trip()
		}
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = BreakerOpen
	cb.openedAt = cb.now()
	cb.failures = 0
	cb.trials = 0
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return cb.state
}
