package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// AuthMiddleware resolves the calling owner from the X-Owner-ID header.
// When an API key is configured the request must also carry it as a
// bearer token; without one the backend trusts the fronting proxy to
// have authenticated the caller.
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		app := c.(*AppContext).App

		if app.APIKey != "" {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(app.APIKey)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
		}

		ownerID := strings.TrimSpace(c.Request().Header.Get("X-Owner-ID"))
		if ownerID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Missing X-Owner-ID header"})
		}

		c.(*AppContext).User = &AppUser{OwnerID: ownerID}
		return next(c)
	}
}
