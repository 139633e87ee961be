package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const metaKey = "response_meta"

// Meta is the free-form metadata block attached to response envelopes.
type Meta map[string]interface{}

// WithResponseMeta seeds an empty metadata map for the request and stamps
// the total processing time once the handler chain returns, unless the
// handler already recorded a more precise figure.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(metaKey, Meta{})
		c.Next()
		m := metaFor(c)
		if _, ok := m["processing_time_ms"]; !ok {
			m["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit notes whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaFor(c)["cache_hit"] = hit
}

// ExtractMeta returns the request's metadata map, or nil when the
// middleware did not run.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(metaKey); ok {
		if m, ok := v.(Meta); ok {
			return m
		}
	}
	return nil
}

func metaFor(c *gin.Context) Meta {
	if c == nil {
		return Meta{}
	}
	if v, ok := c.Get(metaKey); ok {
		if m, ok := v.(Meta); ok {
			return m
		}
	}
	m := Meta{}
	c.Set(metaKey, m)
	return m
}
