package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// ErrorHandler renders every error attached to the context as the uniform
// error envelope. Client errors (4xx) are logged without stacks; server
// errors (5xx) carry the underlying cause and a stack trace in the log, never
// in the response.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered",
					"path", c.Request.URL.Path,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				err := apperr.Unexpected("An unexpected error occurred", nil)
				c.AbortWithStatusJSON(err.HTTPStatus(), apperr.NewEnvelope(err, c.Request.URL.Path))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := apperr.From(c.Errors.Last().Err)
		status := appErr.HTTPStatus()

		fields := []interface{}{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error_code", appErr.Code,
			"client_ip", c.ClientIP(),
		}
		if requestID := c.Request.Header.Get("X-Request-Id"); requestID != "" {
			fields = append(fields, "request_id", requestID)
		}
		if tenantID := c.GetString("tenantId"); tenantID != "" {
			fields = append(fields, "tenant_id", tenantID)
		}

		if status >= 500 {
			fields = append(fields, "cause", appErr.Error(), "stack", string(debug.Stack()))
			log.Error("Request failed", fields...)
		} else {
			log.Warn("Request rejected", fields...)
		}

		if !c.Writer.Written() {
			c.JSON(status, apperr.NewEnvelope(appErr, c.Request.URL.Path))
		}
	}
}

// AbortWithError attaches the error to the context for ErrorHandler to
// render. Handlers return immediately after calling it.
func AbortWithError(c *gin.Context, err error) {
	c.Errors = append(c.Errors, &gin.Error{Err: err, Type: gin.ErrorTypePrivate})
	c.Abort()
}
