package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/service"
)

// EnsureProfileMiddleware creates the caller's profile on its first
// authenticated request. It must run after auth.Middleware.
func EnsureProfileMiddleware(profiles *service.ProfileService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := auth.FromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "unauthenticated",
				"message": "Unauthorized: bearer token required",
			}})
			return
		}
		if _, err := profiles.Ensure(c.Request.Context(), session); err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MaxBodyMiddleware caps the request body at limit bytes.
func MaxBodyMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds basic, sensible security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevents clickjacking
		c.Header("X-Frame-Options", "DENY")
		// Prevents MIME-type sniffing
		c.Header("X-Content-Type-Options", "nosniff")
		// JSON API and uploaded media only; nothing here should run scripts.
		c.Header("Content-Security-Policy", "default-src 'none'; img-src 'self'; media-src 'self'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
