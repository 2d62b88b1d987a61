package middleware

import (
	"context"
	"strings"

	"ai-productivity-app/assistant/pkg/errors"
	"ai-productivity-app/assistant/pkg/jwt"
	"ai-productivity-app/assistant/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenValidator turns a bearer token into claims
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuthMiddleware rejects requests without a valid bearer token and stores the caller's
// user id under "userID" on both the gin and request contexts
func JWTAuthMiddleware(validator TokenValidator, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		// Strip "Bearer " prefix if present
		token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))

		claims, err := validator.ValidateToken(token)
		if err != nil {
			logger.Warn("invalid bearer token", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userID", claims.UserID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), UserIDKey, claims.UserID))

		c.Next()
	}
}

// UserID returns the authenticated user id set by JWTAuthMiddleware
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
