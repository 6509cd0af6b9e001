package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pharmastock/internal/core/apperror"
	"pharmastock/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorHandler turns the last gin error into a JSON response. Internal errors
// are logged in full and answered with a generic message.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		status, body := errorResponse(c, c.Errors.Last().Err)
		c.JSON(status, body)
	}
}

func errorResponse(c *gin.Context, err error) (int, ErrorResponse) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}
		return appErr.HTTPStatus, ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	return http.StatusInternalServerError, ErrorResponse{
		Code:    apperror.CodeInternal,
		Message: "Internal server error",
		Details: map[string]any{"requestId": c.GetString("request_id")},
	}
}
