package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// UserIDContextKey holds the authenticated user's id
	UserIDContextKey ContextKey = "user_id"
	// EmailContextKey holds the authenticated user's email
	EmailContextKey ContextKey = "user_email"
)

// RequireAuth creates authentication middleware that validates Bearer
// tokens and stashes the caller's identity in the request context.
func RequireAuth(tokenService *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			userID, email, err := tokenService.ValidateToken(tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(UserIDContextKey), userID)
			c.Set(string(EmailContextKey), email)

			return next(c)
		}
	}
}

// MustGetUserID returns the authenticated user id set by RequireAuth.
// Only valid on routes behind the middleware.
func MustGetUserID(c echo.Context) uuid.UUID {
	return c.Get(string(UserIDContextKey)).(uuid.UUID)
}
