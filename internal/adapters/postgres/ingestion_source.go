package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// IngestionSource reads the rows one importer wrote to ingestion_entries.
// Each importer is exposed as its own source so a broken feed only
// degrades its own contribution.
type IngestionSource struct {
	name string
	pool *pgxpool.Pool
}

// NewIngestionSource creates a source for rows tagged with name
func NewIngestionSource(pool *pgxpool.Pool, name string) *IngestionSource {
	return &IngestionSource{name: name, pool: pool}
}

// Name identifies the source in diagnostics and metrics
func (s *IngestionSource) Name() string { return s.name }

// Fetch returns the source's rows for one driver week
func (s *IngestionSource) Fetch(ctx context.Context, driverID, weekID string) ([]models.IngestionEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, driver_id, week_id, platform_tag, amount, trips
		FROM ingestion_entries
		WHERE source = $1 AND driver_id = $2 AND week_id = $3
		ORDER BY imported_at, id`, s.name, driverID, weekID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s entries: %w", s.name, err)
	}
	defer rows.Close()

	var out []models.IngestionEntry
	for rows.Next() {
		var (
			e      models.IngestionEntry
			id     pgtype.UUID
			amount pgtype.Numeric
		)
		if err := rows.Scan(&id, &e.DriverID, &e.WeekID, &e.RawPlatform, &amount, &e.Trips); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", s.name, err)
		}
		e.ID = uuidString(id)
		e.Platform, _ = models.ParsePlatform(e.RawPlatform)
		if e.Amount, err = converters.FromNumeric(amount); err != nil {
			return nil, fmt.Errorf("%s entry %s: %w", s.name, e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
