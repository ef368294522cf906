// Package ingestion fans out to every ingestion source for a driver-week
// and folds their rows into one set of totals.
package ingestion

import (
	"context"
	"sort"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// SourceResult is the outcome of reading one source. Exactly one of
// Entries and Err is meaningful.
type SourceResult struct {
	Source  string
	Entries []models.IngestionEntry
	Err     error
}

// Aggregator reads all configured sources concurrently.
type Aggregator struct {
	sources       []ports.IngestionSource
	sourceTimeout time.Duration
	maxParallel   int
	logger        ports.Logger
}

// NewAggregator creates an aggregator. A zero sourceTimeout disables the
// per-source deadline; maxParallel <= 0 reads every source at once.
func NewAggregator(sources []ports.IngestionSource, sourceTimeout time.Duration, maxParallel int, logger ports.Logger) *Aggregator {
	return &Aggregator{
		sources:       sources,
		sourceTimeout: sourceTimeout,
		maxParallel:   maxParallel,
		logger:        logger,
	}
}

// Fetch reads every source and returns one result per source, in the
// order the sources were configured. A failing source never cancels the
// others.
func (a *Aggregator) Fetch(ctx context.Context, driverID, weekID string) []SourceResult {
	results := make([]SourceResult, len(a.sources))

	// Plain Group: branch errors are recorded per result, not propagated,
	// so one failure must not cancel the shared context.
	var g errgroup.Group
	if a.maxParallel > 0 {
		g.SetLimit(a.maxParallel)
	}

	for i, src := range a.sources {
		g.Go(func() error {
			results[i] = a.fetchOne(ctx, src, driverID, weekID)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, src ports.IngestionSource, driverID, weekID string) SourceResult {
	if a.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.sourceTimeout)
		defer cancel()
	}

	start := time.Now()
	entries, err := src.Fetch(ctx, driverID, weekID)
	observability.RecordIngestionSource(src.Name(), err == nil, time.Since(start).Seconds())

	if err != nil {
		a.logger.Warn("ingestion source failed",
			ports.String("source", src.Name()),
			ports.DriverID(driverID),
			ports.WeekID(weekID),
			ports.Err(err))
		return SourceResult{Source: src.Name(), Err: err}
	}
	return SourceResult{Source: src.Name(), Entries: entries}
}

// Totals fetches and folds in one step. It returns ErrSourcesUnavailable
// when every source failed and ErrNoIngestionData when the reachable
// sources returned no rows at all.
func (a *Aggregator) Totals(ctx context.Context, driverID, weekID string) (*models.IngestionTotals, error) {
	results := a.Fetch(ctx, driverID, weekID)
	totals := Fold(results)

	if len(results) > 0 && len(totals.FailedSources) == len(results) {
		return totals, domain.ErrSourcesUnavailable
	}
	if totals.RowCount == 0 {
		return totals, domain.ErrNoIngestionData
	}
	return totals, nil
}

// Fold sums rows across all successful results. Duplicate rows for the same
// platform are added together, never replaced.
func Fold(results []SourceResult) *models.IngestionTotals {
	totals := &models.IngestionTotals{
		EarningsByPlatform: make(map[models.Platform]decimal.Decimal),
		GrossEarnings:      decimal.Zero,
		FuelCost:           decimal.Zero,
		TollCost:           decimal.Zero,
	}
	unmapped := make(map[string]struct{})

	for _, res := range results {
		if res.Err != nil {
			totals.FailedSources = append(totals.FailedSources, models.SourceFailure{
				Source: res.Source,
				Reason: res.Err.Error(),
			})
			continue
		}

		for _, e := range res.Entries {
			totals.RowCount++
			switch {
			case e.Platform.IsEarnings():
				totals.EarningsByPlatform[e.Platform] = totals.EarningsByPlatform[e.Platform].Add(e.Amount)
				totals.Trips += e.Trips
			case e.Platform == models.PlatformFuel:
				totals.FuelCost = totals.FuelCost.Add(e.Amount)
			case e.Platform == models.PlatformTolls:
				totals.TollCost = totals.TollCost.Add(e.Amount)
			default:
				unmapped[e.RawPlatform] = struct{}{}
			}
		}
	}

	gross := decimal.Zero
	for p, v := range totals.EarningsByPlatform {
		v = models.Round2(v)
		totals.EarningsByPlatform[p] = v
		gross = gross.Add(v)
	}
	totals.GrossEarnings = models.Round2(gross)
	totals.FuelCost = models.Round2(totals.FuelCost)
	totals.TollCost = models.Round2(totals.TollCost)

	for tag := range unmapped {
		totals.UnmappedTags = append(totals.UnmappedTags, tag)
	}
	sort.Strings(totals.UnmappedTags)

	return totals
}
