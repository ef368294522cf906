package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/settlement-service/internal/converters"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
)

const pgUniqueViolation = "23505"

// conn returns db when a caller passed one, otherwise the repository pool.
func conn(db ports.DBTX, pool *pgxpool.Pool) ports.DBTX {
	if db != nil {
		return db
	}
	return pool
}

// isUniqueViolation reports a duplicate key error, optionally restricted to one constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func uuidArg(id string) pgtype.UUID {
	return converters.ToNullableUUID(&id)
}

func uuidString(u pgtype.UUID) string {
	return converters.StringOrEmpty(converters.UUIDPtr(u))
}
