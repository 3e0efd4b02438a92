package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cruisemall/affiliate/internal/security"
	"github.com/cruisemall/affiliate/internal/utils"
)

const actorKey = "actor"

// AuthMiddleware verifies the bearer token and puts the actor in the context
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)

		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(actorKey, claims.Actor())
		c.Next()
	}
}

// AdminMiddleware ensures the actor has admin privileges. Services check
// again through the policy; this only fails fast at the edge.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok || !actor.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ActorFromContext returns the actor set by AuthMiddleware
func ActorFromContext(c *gin.Context) (security.Actor, bool) {
	v, exists := c.Get(actorKey)
	if !exists {
		return security.Actor{}, false
	}
	actor, ok := v.(security.Actor)
	return actor, ok
}

// extractToken gets the token from the Authorization header
func extractToken(c *gin.Context) string {
	parts := strings.Fields(c.GetHeader("Authorization"))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
