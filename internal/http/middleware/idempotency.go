// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe methods. A patient
// on a flaky connection retries "create emergency request"; the retry must
// return the request already created instead of paging every compatible
// donor a second time. The middleware only validates and annotates: the
// handler owns storing and replaying the result.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemClaim  = "idem.claim"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:-]+$`)

// IdempotencyClaim names one operation attempt: the caller, the operation
// ("METHOD route"), and the client key.
type IdempotencyClaim struct {
	UserID string
	Scope  string
	Key    string
}

// IdempotencyFrom returns the claim validated for this request, if any.
func IdempotencyFrom(c *gin.Context) (IdempotencyClaim, bool) {
	v, ok := c.Get(ctxKeyIdemClaim)
	if !ok {
		return IdempotencyClaim{}, false
	}
	cl, ok := v.(IdempotencyClaim)
	return cl, ok && cl.Key != ""
}

// IsReplay reports whether a completed result already exists for the claim.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts key characters; nil means ^[A-Za-z0-9._~:-]+$.
	Pattern *regexp.Regexp
	// Scope overrides the "METHOD route" scope.
	Scope string
}

// ReplayLookup reports whether an unexpired result is stored for the claim.
// Errors are logged and treated as a miss.
type ReplayLookup func(ctx context.Context, claim IdempotencyClaim, now time.Time) (bool, error)

// IdempotencyValidator checks the key on POST, PUT, PATCH, and DELETE.
// Requests without a key, and safe methods, pass untouched. A malformed key
// is rejected with 400 "bad_idempotency_key". A key with a stored result
// marks the request as a replay, which also exempts it from rate limiting.
func IdempotencyValidator(opts IdempotencyOptions, lookup ReplayLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		claim := IdempotencyClaim{UserID: IdempotencyUser(c), Scope: opts.Scope, Key: key}
		if claim.Scope == "" {
			claim.Scope = c.Request.Method + " " + c.FullPath()
		}
		c.Set(ctxKeyIdemClaim, claim)

		if lookup != nil {
			found, err := lookup(c.Request.Context(), claim, time.Now().UTC())
			if err != nil {
				lg := LoggerFrom(c)
				lg.Warn().Err(err).Str("scope", claim.Scope).Msg("idempotency lookup failed")
			}
			if found {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// IdempotencyUser returns the id records are keyed by. Anonymous callers
// share AnonymousUserID.
func IdempotencyUser(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return AnonymousUserID
}
