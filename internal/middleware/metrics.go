package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smartattend/integrity-api/internal/service"
)

// Metrics records one observation per request. The route template from
// FullPath keeps label cardinality bounded; requests that matched no
// route collapse into a single series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
