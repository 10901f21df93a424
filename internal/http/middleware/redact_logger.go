// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. Request bodies are
// never logged. Query strings and header values pass through a Redactor
// first: donor searches carry precise coordinates, donors register phone
// numbers and push tokens, and none of those belong in log storage.
package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	redacted = "[REDACTED]"
	// maxQueryLogLength caps the logged query after redaction.
	maxQueryLogLength = 2048
)

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	// Expo tokens look like ExponentPushToken[xxxx]; FCM tokens are long
	// base64url runs with a colon after the instance id.
	pushTokenRE = regexp.MustCompile(`ExponentPushToken\[[^\]]*\]|\b[A-Za-z0-9_-]{20,}:[A-Za-z0-9_-]{60,}\b`)
	emailRE     = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments never match.
	phoneRE = regexp.MustCompile(`(?:\+|\b)(?:\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
	// A bare "lat,lng" pair, as in a geo header or a free-text field.
	coordPairRE = regexp.MustCompile(`[-+]?\d{1,2}\.\d{3,}\s*,\s*[-+]?\d{1,3}\.\d{3,}`)
)

// sensitiveParams are query keys whose values are replaced wholesale.
var sensitiveParams = map[string]string{
	"lat":           "geo",
	"lng":           "geo",
	"lon":           "geo",
	"latitude":      "geo",
	"longitude":     "geo",
	"phone":         "phone",
	"contact_phone": "phone",
	"email":         "email",
	"token":         "token",
	"push_token":    "token",
}

// Redactor scrubs personal data from strings bound for logs.
type Redactor struct {
	maskHeaders map[string]struct{}
}

// NewRedactor returns a Redactor that fully masks Authorization, Cookie,
// Set-Cookie, and any extra header names given (case-insensitive).
func NewRedactor(extraHeaders ...string) *Redactor {
	m := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range extraHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return &Redactor{maskHeaders: m}
}

// Scrub replaces identifiers, push tokens, coordinates, emails, and phone
// numbers inside free text. Phones go last: their pattern is the loosest.
func (r *Redactor) Scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = pushTokenRE.ReplaceAllString(s, "[REDACTED:token]")
	s = coordPairRE.ReplaceAllString(s, "[REDACTED:geo]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Query masks known sensitive parameters by name and scrubs the rest.
// Keys are emitted sorted. A query that does not parse is scrubbed as text.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.Scrub(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			if kind, ok := sensitiveParams[strings.ToLower(k)]; ok {
				b.WriteString("[REDACTED:" + kind + "]")
				continue
			}
			b.WriteString(r.Scrub(v))
		}
	}
	return b.String()
}

// Header returns the loggable form of a header value.
func (r *Redactor) Header(name string, values []string) string {
	if _, ok := r.maskHeaders[strings.ToLower(name)]; ok {
		return redacted
	}
	return r.Scrub(strings.Join(values, ", "))
}

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names whose values are fully masked.
	MaskHeaders []string
}

// RedactingLogger attaches a request-scoped logger (request id, method,
// route) for handlers and, once the request completes, writes one
// "http_request" line with the redacted query and headers, the caller, the
// status, bytes written, and latency. 5xx and Gin errors log at error, 4xx at
// warn, the rest at info.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts.MaskHeaders...)

	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid := RequestIDFrom(c)
		if rid == "" {
			rid = c.GetHeader(requestIDHeader)
		}

		scoped := log.With().
			Str("request_id", rid).
			Str("method", c.Request.Method).
			Str("path", route).
			Logger()
		c.Set(ctxKeyLogger, &scoped)

		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			headers.Str(k, red.Header(k, vv))
		}
		query := truncate(red.Query(c.Request.URL.RawQuery), maxQueryLogLength)

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c)
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", red.Scrub(c.Errors.String()))
			}
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}

		ev.Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Dict("headers", headers).
			Msg("http_request")
	}
}
