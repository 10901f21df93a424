// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the request correlation plumbing:
//
//   - RequestID() reuses or mints the X-Request-ID correlation id.
//   - Recovery() turns panics into the standard JSON 500 envelope.
//   - LoggerFrom() hands handlers the request-scoped zerolog.Logger that
//     RedactingLogger attached and Identity enriched with the caller.
//
// Register RequestID first, then RedactingLogger, then Recovery, so a panic
// is logged with its correlation id.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ctxKeyRequestID = "requestID"
	ctxKeyLogger    = "logger"

	requestIDHeader = "X-Request-ID"
	// maxRequestIDLength bounds client-supplied ids echoed into headers and logs.
	maxRequestIDLength = 128
)

// RequestID reuses a client X-Request-ID when it is present and reasonably
// short, otherwise it generates a UUIDv4. The id is echoed on the response
// and stored in the Gin context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id for the request, or "".
func RequestIDFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return c.Writer.Header().Get(requestIDHeader)
}

// Recovery logs a recovered panic with its stack and answers
//
//	{"request_id": "...", "code": "internal_error", "message": "internal server error"}
//
// unless the handler already started writing, in which case the status is
// all that can still be set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			lg := LoggerFrom(c)
			lg.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// none was attached. The result is never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// enrichLogger replaces the request-scoped logger with one carrying extra
// fields. It is a no-op when no logger was attached.
func enrichLogger(c *gin.Context, with func(zerolog.Context) zerolog.Context) {
	v, ok := c.Get(ctxKeyLogger)
	if !ok {
		return
	}
	lg, ok := v.(*zerolog.Logger)
	if !ok {
		return
	}
	l := with(lg.With()).Logger()
	c.Set(ctxKeyLogger, &l)
}

// truncate caps s at max bytes and appends an ellipsis. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
