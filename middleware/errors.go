package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/apperr"
)

// Fail records err on the context and stops the chain; ErrorHandler writes
// the response.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler turns the last recorded error into the failure envelope
// {success:false, message, error:{code,message}}.
func ErrorHandler(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperr.HTTPStatus(err)
		msg := apperr.PublicMessage(err)
		code := apperr.Code(err)

		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		l.LogAttrs(c.Request.Context(), level, "request_failed",
			slog.String("request_id", GetRequestID(c)),
			slog.Int("status", status),
			slog.String("code", code),
			slog.Any("err", err),
		)

		body := gin.H{
			"success": false,
			"message": msg,
			"error": gin.H{
				"code":    code,
				"message": msg,
			},
		}
		if ae, ok := apperr.As(err); ok && len(ae.Fields) > 0 {
			body["error"].(gin.H)["details"] = ae.Fields
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
