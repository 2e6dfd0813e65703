package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/pricing"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = domain.ErrNotFound

// IsDuplicate detects unique constraint violation.
func IsDuplicate(err error) bool {
	return db.IsUniqueViolation(err)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// limitArg turns a non-positive limit into NULL, which Postgres treats as
// LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func int8Ptr(v pgtype.Int8) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func decodeUnits(raw []byte) ([]domain.UnitConversion, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var units []domain.UnitConversion
	if err := json.Unmarshal(raw, &units); err != nil {
		return nil, fmt.Errorf("decode unit conversions: %w", err)
	}
	return pricing.NormalizeUnits(units), nil
}

func encodeUnits(units []domain.UnitConversion) ([]byte, error) {
	if units == nil {
		units = []domain.UnitConversion{}
	}
	return json.Marshal(pricing.NormalizeUnits(units))
}
