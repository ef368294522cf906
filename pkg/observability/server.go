package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewMetricsRouter exposes /metrics, and /health plus /ready when health is set.
// Without a checker /ready always answers 200.
func NewMetricsRouter(health *HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	if health == nil {
		r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ready"))
		})
		return r
	}
	r.Get("/health", health.HealthHandler())
	r.Get("/ready", health.ReadyHandler())
	return r
}

// StartMetricsServer serves NewMetricsRouter on port in the background.
// Listen errors are logged, not returned, so a busy metrics port never
// takes down settlement traffic.
func StartMetricsServer(port string, health *HealthChecker, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           NewMetricsRouter(health),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	return server
}

// ShutdownMetricsServer gives scrapes in flight five seconds to finish.
func ShutdownMetricsServer(ctx context.Context, server *http.Server) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
