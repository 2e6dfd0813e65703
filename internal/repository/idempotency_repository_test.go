package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acquireSQL = `(?s)INSERT INTO idempotency_keys.*ON CONFLICT \(key\) DO UPDATE\s+SET expires_at = EXCLUDED.expires_at\s+WHERE idempotency_keys.expires_at <= now\(\)`

func TestIdempotencyAcquire(t *testing.T) {
	cases := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"new key", 1, true},
		{"expired row taken over", 1, true},
		{"live key held elsewhere", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pg, mock := newMockDB(t, 0)
			mock.ExpectExec(acquireSQL).
				WithArgs("b1:u2:tok", float64(90)).
				WillReturnResult(pgxmock.NewResult("INSERT", tc.affected))

			ok, err := IdempotencyRepository{DB: pg}.Acquire(context.Background(), "b1:u2:tok", 90*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdempotencyAcquireError(t *testing.T) {
	pg, mock := newMockDB(t, 0)
	mock.ExpectExec(acquireSQL).WillReturnError(errors.New("connection reset"))

	ok, err := IdempotencyRepository{DB: pg}.Acquire(context.Background(), "k", time.Minute)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyCompleteReleasePrune(t *testing.T) {
	pg, mock := newMockDB(t, 0)
	repo := IdempotencyRepository{DB: pg}
	ctx := context.Background()

	mock.ExpectExec(`(?s)INSERT INTO idempotency_keys.*ON CONFLICT \(key\) DO UPDATE\s+SET expires_at = EXCLUDED.expires_at`).
		WithArgs("k", float64(60)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM idempotency_keys WHERE key=\$1`).
		WithArgs("k").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM idempotency_keys WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, repo.Complete(ctx, "k", time.Minute))
	require.NoError(t, repo.Release(ctx, "k"))
	n, err := repo.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
