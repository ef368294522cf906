package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_shutdown_duration_seconds",
		Help:    "Total time taken to shutdown gracefully",
		Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
	})

	componentShutdownDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_component_shutdown_duration_seconds",
		Help:    "Time taken to shutdown individual components",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
	}, []string{"component"})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// Func shuts down one component within ctx's deadline
type Func func(context.Context) error

type component struct {
	name string
	fn   Func
}

// Manager coordinates graceful shutdown of the service components.
// Components stop one at a time in reverse registration order, so register
// the database first and the HTTP server last.
type Manager struct {
	logger     *zap.Logger
	components []component
	mu         sync.Mutex
	timeout    time.Duration
	once       sync.Once
	err        error
}

// NewManager creates a new shutdown manager
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a component
func (sm *Manager) Register(name string, fn Func) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.components = append(sm.components, component{name: name, fn: fn})
	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// RegisterHTTPServer registers anything with a context-aware Shutdown
func (sm *Manager) RegisterHTTPServer(name string, server interface{ Shutdown(context.Context) error }) {
	sm.Register(name, server.Shutdown)
}

// RegisterCloser registers a component with Close() error
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(context.Context) error { return closer.Close() })
}

// RegisterNoErr registers a shutdown function without an error result
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(context.Context) error {
		fn()
		return nil
	})
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx cancellation and
// then shuts everything down.
func (sm *Manager) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		sm.logger.Info("Received shutdown signal - initiating graceful shutdown",
			zap.String("signal", sig.String()),
			zap.Duration("timeout", sm.timeout),
		)
	case <-ctx.Done():
		sm.logger.Info("Context cancelled - initiating graceful shutdown")
	}
	return sm.Shutdown()
}

// Shutdown runs every component once. Later calls return the first result.
func (sm *Manager) Shutdown() error {
	sm.once.Do(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()

		sm.err = sm.shutdownComponents(ctx)
		elapsed := time.Since(start)
		shutdownDuration.Observe(elapsed.Seconds())

		if sm.err != nil {
			sm.logger.Error("Graceful shutdown completed with errors",
				zap.Duration("elapsed", elapsed), zap.Error(sm.err))
			return
		}
		sm.logger.Info("Graceful shutdown completed", zap.Duration("elapsed", elapsed))
	})
	return sm.err
}

func (sm *Manager) shutdownComponents(ctx context.Context) error {
	sm.mu.Lock()
	components := append([]component(nil), sm.components...)
	sm.mu.Unlock()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%s: skipped: %w", c.name, ctx.Err()))
			shutdownErrors.WithLabelValues(c.name).Inc()
			continue
		}

		start := time.Now()
		err := c.fn(ctx)
		componentShutdownDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
		if err != nil {
			shutdownErrors.WithLabelValues(c.name).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			sm.logger.Error("Component shutdown failed",
				zap.String("component", c.name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)))
			continue
		}
		sm.logger.Info("Component shut down",
			zap.String("component", c.name),
			zap.Duration("elapsed", time.Since(start)))
	}
	return errors.Join(errs...)
}
