package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/http/v1/dto"
	"stockledger/pkg/logger"
)

// ErrorHandler renders the last error attached to the gin context.
// Handlers never write error bodies themselves; they call c.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status, body := errorResponse(err, appctx.GetRequestID(c.Request.Context()))

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error(ctx, "request failed", "code", body.Code, "error", err)
		case hasCause(err):
			logger.Warn(ctx, "request rejected", "code", body.Code, "error", err)
		}

		failIdempotency(c, status, body)
		c.JSON(status, body)
	}
}

// errorResponse maps err to a status and body. Causes of unknown errors are
// never exposed; the client gets the request ID to quote instead.
func errorResponse(err error, requestID string) (int, dto.ErrorResponse) {
	appErr, ok := apperror.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError, dto.ErrorResponse{
			Code:    apperror.CodeInternal,
			Message: "Internal server error",
			Details: map[string]any{"request_id": requestID},
		}
	}
	return appErr.HTTPStatus, dto.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
}

func hasCause(err error) bool {
	appErr, ok := apperror.AsAppError(err)
	return ok && appErr.Err != nil
}

func logWarn(c *gin.Context, msg string, err error) {
	logger.Warn(c.Request.Context(), msg, "error", err)
}
