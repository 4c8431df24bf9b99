package middleware

import (
	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	appctx "factorydesk/internal/core/context"
)

// RequirePermission middleware checks if user has required permission.
// Super admins have all permissions.
func RequirePermission(permission string) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission middleware checks if user has any of the required permissions.
func RequireAnyPermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if appctx.GetUser(ctx) == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		for _, required := range permissions {
			if appctx.HasPermission(ctx, required) {
				c.Next()
				return
			}
		}

		detail := any(permissions)
		if len(permissions) == 1 {
			detail = permissions[0]
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_permission", detail),
		)
		c.Abort()
	}
}
