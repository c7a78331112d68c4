package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/basketrec/internal/services"
)

const (
	ctxSubject = "subject"
	ctxRole    = "role"
)

// Auth accepts "Authorization: Bearer <jwt>" or "Bearer <api key>". Tokens
// contain dots; API keys must not.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abort(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}
		tokenString := tokenParts[1]

		if !strings.Contains(tokenString, ".") {
			role, err := authService.ValidateAPIKey(tokenString)
			if err != nil {
				logger.WithError(err).Warn("Invalid API key")
				abort(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
				return
			}

			c.Set(ctxSubject, "key:"+keyFingerprint(tokenString))
			c.Set(ctxRole, role)
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abort(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ctxSubject, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role differs from role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, got := GetSubjectFromContext(c); got != role {
			abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
			return
		}
		c.Next()
	}
}

func GetSubjectFromContext(c *gin.Context) (string, string) {
	return c.GetString(ctxSubject), c.GetString(ctxRole)
}

func keyFingerprint(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
