package cache

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

var skipPrefixes = []string{"/admin", "/api", "/backoffice", "/public", "/uploads", "/newsletter", "/search"}

type MiddlewareOptions struct {
	// SessionCookie names the admin session cookie; requests carrying it bypass the cache.
	SessionCookie string
	// OnHit runs for every request answered from the cache.
	OnHit func(c *gin.Context)
}

// Middleware caches successful HTML responses of public GET routes.
func Middleware(store Store, opts MiddlewareOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cacheable(c.Request, opts.SessionCookie) {
			c.Next()
			return
		}

		key := c.Request.URL.Path

		if cached, found := store.Get(c.Request.Context(), key); found {
			c.Header("X-Cache", "HIT")
			if opts.OnHit != nil {
				opts.OnHit(c)
			}
			c.Data(http.StatusOK, "text/html; charset=utf-8", cached)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		if c.Writer.Status() == http.StatusOK &&
			strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/html") {
			if err := store.Set(c.Request.Context(), key, writer.body.Bytes()); err != nil {
				zap.S().Warnw("writing page cache", "path", key, "error", err)
			}
		}
	}
}

func cacheable(r *http.Request, sessionCookie string) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.URL.RawQuery != "" {
		return false
	}
	for _, p := range skipPrefixes {
		if r.URL.Path == p || strings.HasPrefix(r.URL.Path, p+"/") {
			return false
		}
	}
	if sessionCookie != "" {
		if _, err := r.Cookie(sessionCookie); err == nil {
			return false
		}
	}
	return true
}
