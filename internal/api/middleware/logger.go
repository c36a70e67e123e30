package middleware

import (
	"time"

	"example.com/jonoshongjog/services/relief/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// RequestID adds a request ID to the context and the response
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// Logger logs each request and records its latency
func Logger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m != nil {
			m.RecordTimer("http "+c.Request.Method+" "+route, latency.Milliseconds())
			if statusCode >= 500 {
				m.RecordError("http")
			} else {
				m.RecordSuccess("http")
			}
		}

		event := log.Info()
		msg := "Request processed"
		if statusCode >= 500 {
			event, msg = log.Error(), "Server error"
		} else if statusCode >= 400 {
			event, msg = log.Warn(), "Client error"
		}
		event.
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("request_id", c.GetString(RequestIDHeader)).
			Msg(msg)
	}
}
