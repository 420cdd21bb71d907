package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/training-engine/internal/models"
	"github.com/terra-clan/training-engine/internal/storage"
)

// AuthMiddleware resolves bearer tokens to user accounts
type AuthMiddleware struct {
	repo storage.Repository
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(repo storage.Repository) *AuthMiddleware {
	return &AuthMiddleware{repo: repo}
}

// Authenticate verifies the token from the Authorization header.
// Supports "Bearer tk_xxx" or a raw token; X-API-Key works as fallback.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing token", "provide Authorization header with Bearer token or X-API-Key header")
			return
		}

		user, err := m.repo.GetUserByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				slog.Warn("invalid token attempt", "token_prefix", maskToken(token), "remote_addr", r.RemoteAddr)
				writeAuthError(w, http.StatusUnauthorized, "invalid token", "the provided token is not valid")
				return
			}
			slog.Error("failed to look up user by token", "error", err, "token_prefix", maskToken(token))
			writeAuthError(w, http.StatusInternalServerError, "authentication error", "internal server error")
			return
		}

		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole returns middleware that restricts a route to one role.
// Role checks live here, server side; clients are never trusted to gate
// trainer-only operations.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r.Context())
			if user == nil {
				writeAuthError(w, http.StatusUnauthorized, "not authenticated", "authentication required")
				return
			}

			if user.Role != role {
				slog.Warn("role denied",
					"user_id", user.ID,
					"required", role,
					"has", user.Role,
				)
				writeAuthError(w, http.StatusForbidden, "forbidden",
					"this operation requires the "+string(role)+" role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractToken extracts the auth token from request headers
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.Header.Get("X-API-Key")
}

// maskToken returns first 8 chars of the token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}

// AuthError represents an authentication error response
type AuthError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeAuthError writes JSON error response
func writeAuthError(w http.ResponseWriter, status int, error, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(AuthError{
		Error:   error,
		Message: message,
	})
}
