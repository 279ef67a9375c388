package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizplatform/notification-server/internal/infrastructure/metrics"
)

// Metrics records HTTP request metrics after each request completes.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		metrics.RecordHTTPRequest(c.Request.Method, endpoint, status, duration)
	}
}
