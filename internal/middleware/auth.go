package middleware

import (
	"net/http"
	"strings"

	"teamchat/internal/utils"
	"teamchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Auth validates the caller's JWT and stores the identity claims on
// the context. Browsers can't set headers on websocket dials, so the
// token is also accepted as a query parameter.
func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Missing authorization token")
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			logger.WithError(err).Debug("Token validation failed")
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("user_email", claims.Email)

		c.Next()
	}
}

// OptionalAuth stores identity claims when a valid token is present
// but lets anonymous requests through.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := extractToken(c); tokenString != "" {
			if claims, err := utils.ParseToken(tokenString); err == nil {
				c.Set("user_id", claims.UserID)
				c.Set("user_name", claims.Name)
				c.Set("user_email", claims.Email)
				c.Set("authenticated", true)
			}
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token != authHeader {
			return token
		}
		return ""
	}
	return c.Query("token")
}
