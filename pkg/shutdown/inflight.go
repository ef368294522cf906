package shutdown

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight requests so shutdown waits for payment
// commits to finish instead of cutting them off mid-transaction.
type InFlightTracker struct {
	mu           sync.Mutex
	wg           sync.WaitGroup
	shuttingDown bool
	logger       *zap.Logger
	name         string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{logger: logger, name: name}
}

// Add registers one unit of work. It returns false once shutdown started.
func (ift *InFlightTracker) Add() bool {
	ift.mu.Lock()
	defer ift.mu.Unlock()
	if ift.shuttingDown {
		return false
	}
	ift.wg.Add(1)
	return true
}

// Done marks one unit of work complete
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// Shutdown rejects new work and waits for the current work or ctx
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	ift.mu.Lock()
	ift.shuttingDown = true
	ift.mu.Unlock()

	ift.logger.Info("Waiting for in-flight work to complete", zap.String("tracker", ift.name))

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed", zap.String("tracker", ift.name))
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete", zap.String("tracker", ift.name))
		return ctx.Err()
	}
}

// Middleware tracks each request and answers 503 once shutdown started
func (ift *InFlightTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ift.Add() {
			w.Header().Set("Connection", "close")
			http.Error(w, "service is shutting down", http.StatusServiceUnavailable)
			return
		}
		defer ift.Done()
		next.ServeHTTP(w, r)
	})
}
