package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-tasks/internal/api/shared"
	"github.com/phrazzld/scry-tasks/internal/auth"
	"github.com/phrazzld/scry-tasks/internal/platform/logger"
	"github.com/phrazzld/scry-tasks/internal/redact"
)

// AuthMiddleware guards admin routes with bearer tokens.
type AuthMiddleware struct {
	tokens auth.TokenService
}

// NewAuthMiddleware creates a new AuthMiddleware. A nil token service
// disables every guarded route.
func NewAuthMiddleware(tokens auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

// Authenticate validates the admin token from the Authorization header and
// adds its subject to the request context for authorized requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokens == nil {
			shared.RespondWithError(w, r, http.StatusForbidden, "Admin endpoints are disabled")
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Check Bearer prefix
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrWrongTokenType):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContext(r.Context()).Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.SetAdminSubject(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
