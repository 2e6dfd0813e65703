package repository

import (
	"context"
	"time"

	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/ports"
)

// IdempotencyRepository keeps idempotency keys in Postgres so every server
// instance sees the same set.
type IdempotencyRepository struct {
	DB *db.Postgres
}

var _ ports.IdempotencyStore = IdempotencyRepository{}

// Acquire inserts key, or takes over an expired row. Both happen in one
// statement, so two instances racing on one key cannot both win.
func (r IdempotencyRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := r.DB.Pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE
		SET expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= now()
	`, key, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r IdempotencyRepository) Complete(ctx context.Context, key string, ttl time.Duration) error {
	_, err := r.DB.Pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, key, ttl.Seconds())
	return err
}

func (r IdempotencyRepository) Release(ctx context.Context, key string) error {
	_, err := r.DB.Pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

func (r IdempotencyRepository) Prune(ctx context.Context) (int64, error) {
	tag, err := r.DB.Pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
