package middleware

import (
	"net/http"
	"time"

	"entitlement-api/internal/response"

	"github.com/gin-gonic/gin"
)

// PrincipalAuthMiddleware extracts the current principal.
//
// Session handling lives in the portal's auth layer, which forwards the
// authenticated user id in X-User-ID. This service treats the principal as
// opaque; requests without one are rejected on protected routes.
func PrincipalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")

		// If not passed via header, try to get from query parameters
		if userID == "" {
			userID = c.Query("user_id")
		}

		if userID == "" {
			c.JSON(http.StatusUnauthorized, response.Error(response.CodeAuthRequired, "Missing user identity"))
			c.Abort()
			return
		}

		// Store principal and request time in context
		c.Set("user_id", userID)
		c.Set("request_time", time.Now())
		c.Next()
	}
}

// CurrentUserID returns the principal stored by PrincipalAuthMiddleware.
func CurrentUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// AdminAuthMiddleware guards administrative routes with a static service key
func AdminAuthMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" || c.GetHeader("X-Admin-Key") != adminKey {
			c.JSON(http.StatusUnauthorized, response.Error(response.CodeAuthRequired, "Invalid admin key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
