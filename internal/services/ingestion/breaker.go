package ingestion

import (
	"context"
	"fmt"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/pkg/resilience"
)

// guardedSource fails fast while its importer keeps failing, so a dead feed
// becomes a partial-source diagnostic without waiting out the read timeout.
type guardedSource struct {
	ports.IngestionSource
	breaker *resilience.CircuitBreaker
}

// WithBreaker wraps every source in its own circuit breaker
func WithBreaker(sources []ports.IngestionSource, cfg resilience.BreakerConfig) []ports.IngestionSource {
	out := make([]ports.IngestionSource, len(sources))
	for i, src := range sources {
		out[i] = &guardedSource{IngestionSource: src, breaker: resilience.NewCircuitBreaker(cfg)}
	}
	return out
}

func (s *guardedSource) Fetch(ctx context.Context, driverID, weekID string) ([]models.IngestionEntry, error) {
	var entries []models.IngestionEntry
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		entries, err = s.IngestionSource.Fetch(ctx, driverID, weekID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name(), err)
	}
	return entries, nil
}
