package middleware

import (
	"net/http"
	"strings"

	"bizledger/pkg/jwtutil"
	"bizledger/pkg/logger"
	"bizledger/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware validates the JWT token from the Authorization header and
// stores the resolved claims in the echo context.
func AuthMiddleware(jwt *jwtutil.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			// Get the Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Error("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			// Check if it's a Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Error("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			// Validate the token
			claims, err := jwt.ValidateToken(parts[1])
			if err != nil {
				log.Error("Invalid JWT token", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			// Store user info in context for later use
			c.Set("user_id", claims.UserID)
			c.Set("email", claims.Email)
			c.Set("user_role", claims.Role)
			c.Set("superuser", claims.Superuser)
			if claims.BusinessID != nil {
				c.Set("business_id", *claims.BusinessID)
			}

			return next(c)
		}
	}
}

// RequireBusinessContext ensures the authenticated user carries a business.
// Superusers pass regardless.
func RequireBusinessContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if superuser, ok := c.Get("superuser").(bool); ok && superuser {
			return next(c)
		}
		if _, ok := c.Get("business_id").(uint); !ok {
			prometheus.RecordAuthError("missing_business_context")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "business context required"})
		}
		return next(c)
	}
}
