package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/shadowing-api/pkg/errors"
	"github.com/jwalitptl/shadowing-api/pkg/httputil"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
)

// ErrorHandler logs every error attached to the request and, if the handler
// did not write a response, answers with the last one.
func ErrorHandler(fallback *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		log := logger.FromContext(c.Request.Context(), fallback)
		for _, e := range c.Errors {
			fields := []interface{}{
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			}
			if appErr, ok := errors.As(e.Err); ok && appErr.StatusCode() < 500 {
				log.Debug("Request rejected", append(fields, "error", e.Err.Error())...)
				continue
			}
			log.Error(e.Err, "Request error", fields...)
		}

		if !c.Writer.Written() {
			httputil.RespondWithError(c, c.Errors.Last().Err)
		}
	}
}
