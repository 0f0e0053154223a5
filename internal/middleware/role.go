package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pgstay/internal/pkg/response"
)

const RoleOwner = "owner"

// RequireRole ensures that the authenticated user has one of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		if role == "" {
			response.CustomError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			return
		}

		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.CustomError(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
	}
}

// OwnerOnly requires the property owner role.
func OwnerOnly() gin.HandlerFunc {
	return RequireRole(RoleOwner, "admin")
}
