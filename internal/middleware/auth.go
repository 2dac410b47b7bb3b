package middleware

import (
	"net/http"
	"sinew-backend/internal/service"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

// JWTAuth rejects requests without a valid bearer token.
func JWTAuth(tokens service.TokenManager) echo.MiddlewareFunc {
	return jwtAuth(tokens, true)
}

// OptionalJWTAuth sets the user when a valid bearer token is present and
// lets anonymous requests through.
func OptionalJWTAuth(tokens service.TokenManager) echo.MiddlewareFunc {
	return jwtAuth(tokens, false)
}

func jwtAuth(tokens service.TokenManager, required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request())
			if raw == "" {
				if required {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
				}
				return next(c)
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				if required {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
				}
				return next(c)
			}

			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextEmail, claims.Email)
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func UserID(c echo.Context) string {
	id, _ := c.Get(ContextUserID).(string)
	return id
}

func Email(c echo.Context) string {
	email, _ := c.Get(ContextEmail).(string)
	return email
}
