package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"erms/api/internal/metrics"
)

// Metrics observes request latency labelled by route template, so path
// parameters do not explode label cardinality.
func Metrics(m *metrics.HTTP) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Duration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
