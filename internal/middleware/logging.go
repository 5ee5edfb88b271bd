package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devhaven/auth-service/internal/logger"
	"github.com/devhaven/auth-service/internal/metrics"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id, stores a scoped logger in
// the request context and records the access log line and HTTP metrics.
func RequestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		l := logger.L().With(
			logger.RequestID(requestID),
			logger.Method(c.Request.Method),
			logger.Path(c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(logger.ToContext(c.Request.Context(), l))

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, route, status, latency)

		fields := append(make([]zap.Field, 0, 3),
			logger.Status(status),
			logger.Latency(latency),
			logger.ClientIP(c.ClientIP()),
		)
		switch {
		case status >= 500:
			l.Error("request", fields...)
		case status >= 400:
			l.Warn("request", fields...)
		default:
			l.Info("request", fields...)
		}
	}
}
