package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"factorydesk/internal/core/apperror"
	"factorydesk/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = apperror.NewTimeout("request timed out", err)
		}

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", err,
				)
				c.JSON(appErr.HTTPStatus, gin.H{
					"code":    appErr.Code,
					"message": internalMessage(appErr),
					"details": map[string]any{"request_id": c.GetString("request_id")},
				})
				return
			}

			if appErr.Err != nil {
				logger.Debug(c.Request.Context(), "request rejected",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			c.JSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			})
			return
		}

		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		})
	}
}

// internalMessage keeps server-side failure messages generic.
func internalMessage(appErr *apperror.AppError) string {
	if appErr.Code == apperror.CodeInternal {
		return "Internal server error"
	}
	return appErr.Message
}
