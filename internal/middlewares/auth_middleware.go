package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"contextgraph/internal/utils"
)

const (
	// ActorKey is the context key holding the request's actor name.
	ActorKey       = "actor"
	AnonymousActor = "anonymous"
)

// Identify resolves who is making the request. A missing Authorization
// header is allowed and yields the anonymous actor; a malformed or invalid
// bearer token is rejected. With an empty secret tokens are not checked and
// every request is anonymous.
func Identify(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(secret) == 0 {
			c.Set(ActorKey, AnonymousActor)
			c.Next()
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid Authorization format"})
			return
		}

		claims, err := utils.VerifyJWT(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid or expired token"})
			return
		}

		c.Set(ActorKey, claims.Subject)
		c.Next()
	}
}

// Actor returns the actor set by Identify, or anonymous.
func Actor(c *gin.Context) string {
	if v := c.GetString(ActorKey); v != "" {
		return v
	}
	return AnonymousActor
}
