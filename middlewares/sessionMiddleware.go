package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

// SessionMiddleware resolves the caller from a redis session `token` header
// or an `Authorization: Bearer <jwt>` header. Requests without either pass
// through anonymous; handlers decide whether that is allowed.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username := ""

		if token := c.Request.Header.Get("token"); token != "" {
			name, exists, err := config.GetRedisValue("Token:" + token)
			if err != nil || !exists {
				unauthorized(c)
				return
			}
			ctx = utils.SetTokenInContext(ctx, token)
			username = name
		} else if auth := c.Request.Header.Get("Authorization"); auth != "" {
			bearer, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				unauthorized(c)
				return
			}
			claims, err := utils.JwtValidate(strings.TrimSpace(bearer))
			if err != nil {
				unauthorized(c)
				return
			}
			username = claims.Username
		}

		if username != "" {
			var ok bool
			if ctx, ok = withUser(ctx, username); !ok {
				unauthorized(c)
				return
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func withUser(ctx context.Context, username string) (context.Context, bool) {
	user, err := models.GetUserByUsername(ctx, username)
	if err != nil || !user.Active() {
		return ctx, false
	}
	ctx = utils.SetUsernameInContext(ctx, user.Username)
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	ctx = utils.SetUserNameInContext(ctx, user.Name)
	ctx = utils.SetRolesInContext(ctx, user.RoleCodes())
	ctx = utils.SetIsAdminInContext(ctx, user.IsAdmin)
	return ctx, true
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok || id <= 0 {
			unauthorized(c)
			return
		}
		c.Next()
	}
}
