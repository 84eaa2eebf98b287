package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const sessionKey = "setor7.session"

// Middleware resolves the bearer token into a Session. Requests without a
// valid token are rejected with 401.
func Middleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "unauthenticated",
				"message": "Unauthorized: bearer token required",
			}})
			return
		}

		session, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			msg := "Unauthorized: invalid token"
			if errors.Is(err, ErrExpiredToken) {
				msg = "Unauthorized: token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "unauthenticated",
				"message": msg,
			}})
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// FromContext returns the session stored by Middleware.
func FromContext(c *gin.Context) (*Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	return s, ok
}
