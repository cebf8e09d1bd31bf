package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"gatekeeper/internal/infrastructure/monitoring"
)

// MetricsMiddleware records per-route request counts and latencies.
func MetricsMiddleware(collector *monitoring.PrometheusCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		collector.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
