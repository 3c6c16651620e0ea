package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "pharmstock/internal/core/context"
)

// HeaderUserID carries the acting user identity. Authentication happens at
// the gateway; this service trusts the header for audit stamping only.
const HeaderUserID = "X-User-ID"

// UserContext middleware propagates the acting user into the request context
// so domain services can stamp CreatedBy/UpdatedBy and audit entries.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{UserID: userID})
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", userID)
		}
		c.Next()
	}
}
