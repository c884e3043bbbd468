package middleware

import (
	"net/http"
	"slices"
	"strings"

	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

// RoleAdmin may configure slots and force discharges
const RoleAdmin = "admin"

// AuthMiddleware validates the bearer access token issued by the identity
// service and stores its claims on the context
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <token>")
			c.Abort()
			return
		}

		claims, err := utils.ValidateAccessToken(strings.TrimSpace(token))
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets the request through only for one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}

		name, _ := role.(string)
		if !slices.Contains(roles, name) {
			utils.ErrorResponse(c, http.StatusForbidden, "Insufficient role for this operation")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin checks if the authenticated user has admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}
