package authctx

import (
	"context"

	"pharmapos-backend/internal/domain"
)

type contextKey string

const userContextKey contextKey = "currentUser"

type CurrentUser struct {
	ID         int64
	BusinessID int64
	Email      string
	Role       domain.UserRole
}

// Scope is the business every request of this user is confined to.
func (u CurrentUser) Scope() domain.Scope {
	return domain.Scope{BusinessID: u.BusinessID}
}

func WithCurrentUser(ctx context.Context, user CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func FromContext(ctx context.Context) *CurrentUser {
	val, ok := ctx.Value(userContextKey).(CurrentUser)
	if !ok {
		return nil
	}
	return &val
}
