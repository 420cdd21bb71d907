package api

import (
	"context"

	"github.com/terra-clan/training-engine/internal/models"
)

type contextKey string

const userContextKey contextKey = "user"

// ContextWithUser returns a context carrying the authenticated user
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user, nil if absent
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}
