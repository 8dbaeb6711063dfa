package devserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sesmanagement/discussions/internal/auth"
)

// AuthMiddleware validates the bearer token and sets userID in the context.
// Browsers cannot set headers on a websocket upgrade, so the token query
// parameter is accepted too.
func AuthMiddleware(signer *auth.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must use the Bearer scheme"})
				c.Abort()
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
			c.Abort()
			return
		}

		claims, err := signer.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("name", claims.Name)

		c.Next()
	}
}

// currentUser reads the id set by AuthMiddleware
func currentUser(c *gin.Context) (string, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
