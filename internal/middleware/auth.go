package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/permitsync/permitsync/internal/services/auth"
)

const (
	ctxEmail = "email"
	ctxToken = "token"
)

// Auth validates the bearer token on every request and stores the caller's
// identity on the gin context.
func Auth(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			return
		}

		claims, err := svc.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ctxEmail, claims.Email)
		c.Set(ctxToken, tokenString)
		c.Next()
	}
}

// GetEmail extracts the authenticated caller's email from the context.
func GetEmail(c *gin.Context) string {
	email, ok := c.Get(ctxEmail)
	if !ok {
		return ""
	}
	s, _ := email.(string)
	return s
}

// GetToken extracts the raw session token from the context.
func GetToken(c *gin.Context) string {
	token, ok := c.Get(ctxToken)
	if !ok {
		return ""
	}
	s, _ := token.(string)
	return s
}
