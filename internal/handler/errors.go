package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
)

// classify maps a service error to its HTTP status and response code.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, response.ErrSessionNotOwned
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden, response.ErrTestAccessDenied
	case errors.Is(err, service.ErrGone):
		return http.StatusGone, response.ErrSessionExpired
	case errors.Is(err, service.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrTestAlreadyCompleted
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusTooManyRequests, response.ErrDailyQuotaExceeded
	case errors.Is(err, service.ErrLockContention):
		return http.StatusServiceUnavailable, response.ErrSessionBusy
	case errors.Is(err, service.ErrDuplicateAttempt):
		return http.StatusConflict, response.ErrDuplicateAttempt
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.ErrInvalidCredentials
	case errors.Is(err, service.ErrAccountBanned):
		return http.StatusForbidden, response.ErrAccountBanned
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failWith writes the error envelope for err. Internal errors are logged
// with the request id, the client only sees the generic message.
func failWith(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
