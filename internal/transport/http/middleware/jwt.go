package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"suna-chat/internal/pkg/jwtutil"
	"suna-chat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
)

// AuthJWT requires a valid bearer token. The token may also come from the "token" query
// parameter, which browsers need for websocket upgrades.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, reason := extractToken(c)
		if token == "" {
			response.Error(c, 401, response.CodeUnauthorized, reason)
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// OptionalJWT identifies the caller when a valid token is present and lets guests through.
func OptionalJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, _ := extractToken(c); token != "" {
			if claims, err := jwtutil.ParseToken(secret, token); err == nil {
				c.Set(ContextUserIDKey, claims.UserID)
				c.Set(ContextUsernameKey, claims.Username)
			}
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, string) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		if q := strings.TrimSpace(c.Query("token")); q != "" {
			return q, ""
		}
		return "", "missing authorization header"
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return "", "invalid authorization scheme"
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix)), "missing bearer token"
}
