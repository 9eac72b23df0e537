package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erms/api/internal/models"
	"erms/api/internal/response"
	"erms/api/internal/service"
)

// RequireRoles must run after Auth.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok {
			response.Fail(c, service.ErrMissingToken)
			return
		}

		if _, ok := roleSet[models.UserRole(identity.Role)]; !ok {
			response.Abort(c, http.StatusForbidden, "You do not have permission to perform this action", "forbidden")
			return
		}

		c.Next()
	}
}
