package middleware

import (
	stderrors "errors"
	"net/http"

	"ringlink/internal/core/domain"
	"ringlink/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusForDomainError maps call domain sentinels to HTTP statuses.
func statusForDomainError(err error) (int, bool) {
	switch {
	case stderrors.Is(err, domain.ErrCallNotFound),
		stderrors.Is(err, domain.ErrNoActiveCall),
		stderrors.Is(err, domain.ErrNoRecording),
		stderrors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound, true
	case stderrors.Is(err, domain.ErrCallInProgress),
		stderrors.Is(err, domain.ErrCallTerminal),
		stderrors.Is(err, domain.ErrNotRinging),
		stderrors.Is(err, domain.ErrRecordingActive):
		return http.StatusConflict, true
	case stderrors.Is(err, domain.ErrNotMember):
		return http.StatusForbidden, true
	case stderrors.Is(err, domain.ErrMediaAccessDenied),
		stderrors.Is(err, domain.ErrScreenShareCancelled):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// ErrorHandlerMiddleware turns errors attached to the context into
// structured HTTP responses.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := errors.GetAppError(err); appErr != nil {
			logger.Errorw("application error",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"context", appErr.Context,
			)

			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
				"details": appErr.Context,
			})
			return
		}

		if status, ok := statusForDomainError(err); ok {
			logger.Infow("call operation rejected",
				"error", err.Error(),
				"status", status,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(errors.ErrCodeInternal),
			"message": "Internal server error",
		})
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}
