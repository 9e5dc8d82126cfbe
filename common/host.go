package common

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CanonicalHostMiddleware redirects www.<host> to <host>, keeping path and query.
func CanonicalHostMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		host := c.Request.Host
		if !strings.HasPrefix(host, "www.") {
			c.Next()
			return
		}

		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}

		target := scheme + "://" + strings.TrimPrefix(host, "www.") + c.Request.URL.RequestURI()
		c.Redirect(http.StatusMovedPermanently, target)
		c.Abort()
	}
}
