package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pharmapos-backend/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newGuard() (*Guard, *MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = c.now
	return NewGuard(store, time.Minute), store, c
}

func TestGuardRejectsInFlightAndRecentKeys(t *testing.T) {
	g, _, c := newGuard()
	ctx := context.Background()

	require.NoError(t, g.Begin(ctx, "k1"))

	err := g.Begin(ctx, "k1")
	var dup *domain.DuplicateRequestError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "k1", dup.Key)

	require.NoError(t, g.Complete(ctx, "k1"))
	c.t = c.t.Add(30 * time.Second)
	require.ErrorAs(t, g.Begin(ctx, "k1"), &dup)

	c.t = c.t.Add(31 * time.Second)
	assert.NoError(t, g.Begin(ctx, "k1"))
}

func TestGuardHoldsInFlightKeysPastTTL(t *testing.T) {
	g, _, c := newGuard()
	g.InFlightTTL = 5 * time.Minute
	ctx := context.Background()

	require.NoError(t, g.Begin(ctx, "slow"))
	c.t = c.t.Add(2 * time.Minute)
	var dup *domain.DuplicateRequestError
	require.ErrorAs(t, g.Begin(ctx, "slow"), &dup)

	require.NoError(t, g.Complete(ctx, "slow"))
	c.t = c.t.Add(61 * time.Second)
	assert.NoError(t, g.Begin(ctx, "slow"))
}

func TestGuardInFlightTTLNeverShorterThanTTL(t *testing.T) {
	g, _, _ := newGuard()
	g.InFlightTTL = time.Second
	assert.Equal(t, time.Minute, g.inFlightTTL())
}

func TestGuardReleaseAllowsRetry(t *testing.T) {
	g, _, _ := newGuard()
	ctx := context.Background()

	require.NoError(t, g.Begin(ctx, "k2"))
	require.NoError(t, g.Release(ctx, "k2"))
	assert.NoError(t, g.Begin(ctx, "k2"))
}

func TestMemoryStorePrune(t *testing.T) {
	g, store, c := newGuard()
	ctx := context.Background()
	require.NoError(t, g.Begin(ctx, "a"))
	require.NoError(t, g.Begin(ctx, "b"))

	c.t = c.t.Add(2 * time.Minute)
	n, err := store.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 0, store.Len())
}

func TestPrunerRunOnce(t *testing.T) {
	_, store, c := newGuard()
	_, _ = store.Acquire(context.Background(), "x", time.Second)
	c.t = c.t.Add(time.Minute)

	(&Pruner{Store: store}).RunOnce()
	assert.Equal(t, 0, store.Len())
}

func TestDeriveKey(t *testing.T) {
	scope := domain.Scope{BusinessID: 3}
	payload := map[string]any{"items": []int{1, 2}, "paymentMethod": "CASH"}
	t0 := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	k1, err := DeriveKey(scope, 9, payload, t0, time.Minute)
	require.NoError(t, err)
	k2, err := DeriveKey(scope, 9, payload, t0.Add(20*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "same bucket")

	k3, err := DeriveKey(scope, 9, payload, t0.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3, "later bucket")

	k4, err := DeriveKey(scope, 10, payload, t0, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4, "other actor")
	assert.Contains(t, k1, "b3:u9:auto-")
}
