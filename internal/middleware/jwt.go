package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/playsignal/tracker/internal/auth"
	"github.com/playsignal/tracker/pkg/response"
)

// JWT returns a middleware that validates the bearer token on protected routes.
func JWT(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if _, err := svc.Validate(parts[1]); err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}
