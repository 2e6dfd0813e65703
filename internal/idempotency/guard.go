// Package idempotency rejects retried submissions of the same logical request
// within a retention window. It is advisory: the ledger transaction stays the
// source of atomicity.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

const DefaultTTL = 60 * time.Second

type Guard struct {
	Store ports.IdempotencyStore
	TTL   time.Duration
	// InFlightTTL is how long an unfinished attempt holds its key. It must
	// outlast the longest request. Zero means TTL.
	InFlightTTL time.Duration
}

func NewGuard(store ports.IdempotencyStore, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{Store: store, TTL: ttl}
}

// Begin marks key in flight. It fails with DuplicateRequestError when the key
// is in flight or completed inside the window.
func (g *Guard) Begin(ctx context.Context, key string) error {
	ok, err := g.Store.Acquire(ctx, key, g.inFlightTTL())
	if err != nil {
		return fmt.Errorf("acquire idempotency key: %w", err)
	}
	if !ok {
		return &domain.DuplicateRequestError{Key: key}
	}
	return nil
}

func (g *Guard) inFlightTTL() time.Duration {
	return max(g.TTL, g.InFlightTTL)
}

// Complete keeps key blocked for another window after success.
func (g *Guard) Complete(ctx context.Context, key string) error {
	return g.Store.Complete(ctx, key, g.TTL)
}

// Release frees key after a failed attempt so a new one is not blocked.
func (g *Guard) Release(ctx context.Context, key string) error {
	return g.Store.Release(ctx, key)
}

// ScopedKey namespaces a client token by business and actor.
func ScopedKey(scope domain.Scope, actorID int64, token string) string {
	return "b" + strconv.FormatInt(scope.BusinessID, 10) + ":u" + strconv.FormatInt(actorID, 10) + ":" + token
}

// DeriveKey builds a fallback key from the actor, the payload and the coarse
// time bucket now falls in. Identical payloads from the same actor inside one
// bucket collide.
func DeriveKey(scope domain.Scope, actorID int64, payload any, now time.Time, window time.Duration) (string, error) {
	if window <= 0 {
		window = DefaultTTL
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	bucket := now.UTC().Truncate(window).Unix()
	sum := sha256.Sum256(append(raw, []byte("|"+strconv.FormatInt(bucket, 10))...))
	return ScopedKey(scope, actorID, "auto-"+hex.EncodeToString(sum[:16])), nil
}
