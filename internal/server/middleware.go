package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/telemetry"
)

// RequestID attaches a correlation ID to every request. An incoming
// X-Request-ID is honored so callers can stitch logs across services;
// otherwise a fresh UUID is generated. The ID is echoed in the response
// and stored in the request context for session-scoped logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(telemetry.WithCorrelationID(c.Request.Context(), id))
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"correlation_id", telemetry.CorrelationID(c.Request.Context()),
		)
	}
}
