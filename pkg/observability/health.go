package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the JSON body served on /health.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// Dependency is one health check. A failing Critical dependency makes the
// process unhealthy; any other failure only degrades it.
type Dependency struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Check    func(ctx context.Context) error
}

// PostgresDependency pings the settlement database. Nothing works without it.
func PostgresDependency(pool *pgxpool.Pool) Dependency {
	return Dependency{
		Name:     "database",
		Critical: true,
		Timeout:  2 * time.Second,
		Check:    pool.Ping,
	}
}

// RedisDependency pings the draft cache and job broker.
func RedisDependency(client redis.UniversalClient) Dependency {
	return Dependency{
		Name:    "redis",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// HealthChecker runs its checks on every request; results are not cached.
type HealthChecker struct {
	deps []Dependency
	now  func() time.Time
}

func NewHealthChecker(deps ...Dependency) *HealthChecker {
	return &HealthChecker{deps: deps, now: time.Now}
}

// Check runs every dependency and folds the results into one status.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string, len(h.deps))
	overall := StatusHealthy

	for _, p := range h.deps {
		err := runCheck(ctx, p)
		switch {
		case err == nil:
			checks[p.Name] = StatusHealthy
		case p.Critical:
			checks[p.Name] = StatusUnhealthy + ": " + err.Error()
			overall = StatusUnhealthy
		default:
			checks[p.Name] = StatusDegraded + ": " + err.Error()
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: h.now(),
		Checks:    checks,
	}
}

func runCheck(ctx context.Context, p Dependency) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	return p.Check(ctx)
}

// HealthHandler serves the full status as JSON, 503 when unhealthy.
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}

// ReadyHandler is the load balancer check. A degraded process still takes
// traffic since settlements fall back to recomputing without the cache.
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.Check(r.Context()).Status == StatusUnhealthy {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	}
}
