package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/idgate/internal/models"
)

const ctxRequester = "requester"

// RequesterSource resolves a user together with their roles.
type RequesterSource interface {
	GetRequester(ctx context.Context, id uuid.UUID) (*models.Requester, error)
}

// RequirePermission loads the requester set by RequesterMiddleware and
// aborts unless one of their roles grants the permission flag.
// Superadmins pass every guard. The resolved requester is stored in the
// context for handlers to reuse.
func RequirePermission(src RequesterSource, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := RequesterID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing requester id"})
			return
		}

		requester, err := src.GetRequester(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if requester == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requester unknown or inactive"})
			return
		}
		if !requester.HasPermission(key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied: " + key})
			return
		}

		c.Set(ctxRequester, requester)
		c.Next()
	}
}

// RequireAnyPermission is RequirePermission with alternatives: any one
// of the listed flags admits the requester.
func RequireAnyPermission(src RequesterSource, keys ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := RequesterID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing requester id"})
			return
		}

		requester, err := src.GetRequester(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if requester == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requester unknown or inactive"})
			return
		}
		for _, key := range keys {
			if requester.HasPermission(key) {
				c.Set(ctxRequester, requester)
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	}
}

// Requester returns the requester resolved by RequirePermission.
func Requester(c *gin.Context) (*models.Requester, bool) {
	v, ok := c.Get(ctxRequester)
	if !ok {
		return nil, false
	}
	req, ok := v.(*models.Requester)
	return req, ok
}
