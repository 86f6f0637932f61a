package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ikatan-anggota/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		role, _ := roleVal.(string)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireSelfOrRole lets a request through when the path parameter param equals
// the caller's user id, or when the caller holds one of roles.
func RequireSelfOrRole(param string, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, _ := c.Get(ContextUserRole)
		if r, _ := role.(string); r != "" {
			if _, ok := allowed[r]; ok {
				c.Next()
				return
			}
		}
		uid, ok := UserID(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if c.Param(param) != strconv.FormatInt(uid, 10) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
