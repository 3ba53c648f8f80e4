package telemetry

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger logs finished requests through slog. Server errors are logged at error level.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		lvl := slog.LevelInfo
		if status >= 500 {
			lvl = slog.LevelError
		}

		slog.Log(c.Request.Context(), lvl, "http: request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"took", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}
