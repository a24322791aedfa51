package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/shadowing-api/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. It runs after
// RequestID so every line carries the request id.
func Logger(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		reqLogger := base.WithFields(map[string]interface{}{
			"request_id": c.GetString(ContextRequestID),
		})
		c.Request = c.Request.WithContext(reqLogger.WithContext(c.Request.Context()))

		// Process request
		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		if raw != "" {
			path = path + "?" + raw
		}

		fields := []interface{}{
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"status", statusCode,
			"latency", latency.String(),
			"user_agent", c.Request.UserAgent(),
		}
		if identity, ok := GetIdentity(c); ok {
			fields = append(fields, "user_id", identity.UserID.String(), "role", string(identity.Role))
		}

		// Log based on status code
		switch {
		case statusCode >= 500:
			reqLogger.Error(nil, "Server error", fields...)
		case statusCode >= 400:
			reqLogger.Warn(nil, "Client error", fields...)
		default:
			reqLogger.Info("Request processed", fields...)
		}
	}
}
