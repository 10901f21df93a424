package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/services"
)

// ErrorResponse is the error envelope every endpoint returns.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client report to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code, see errors.go
	Code string `json:"code" example:"request_not_pending"`
	// Human-readable message, safe to show
	Message string `json:"message" example:"request is no longer pending"`
}

// fail writes the envelope and aborts. Server errors are logged on the
// request-scoped logger; the client still receives msg.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute and NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// serviceErrors maps service sentinels to a status and code. The first
// match wins.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{services.ErrValidation, http.StatusBadRequest, ErrCodeValidation},
	{services.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
	{services.ErrRequestNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrDonorNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrResponseNotFound, http.StatusNotFound, ErrCodeNotFound},
	{services.ErrDuplicateResponse, http.StatusConflict, ErrCodeDuplicateResponse},
	{services.ErrRequestNotPending, http.StatusConflict, ErrCodeRequestNotPending},
	{services.ErrInvalidTransition, http.StatusConflict, ErrCodeInvalidTransition},
	{services.ErrEmailTaken, http.StatusConflict, ErrCodeEmailTaken},
}

// failErr answers a service error. Anything unmapped is a 500 with the
// caller's fallback code.
func failErr(c *gin.Context, err error, fallback string) {
	for _, m := range serviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := err.Error()
		if m.target == services.ErrValidation {
			msg = validationMessage(err)
		}
		fail(c, m.status, m.code, msg)
		return
	}
	fail(c, http.StatusInternalServerError, fallback, err.Error())
}

// validationMessage drops the "validation failed: " prefix so clients see
// only the field message.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := services.ErrValidation.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return msg[len(prefix):]
	}
	return msg
}

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
