// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter keyed by caller.
// Routes that trigger expensive work (creating an emergency request fans out
// push notifications to every matching donor) can carry their own, tighter
// budget; all other routes share the default bucket.
//
// Notes:
//   - The limiter is process-local. Behind several replicas the effective
//     limit is multiplied by the replica count.
//   - Idempotent replays flagged by IdempotencyValidator are never limited.
//   - It is abuse control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc selects the identity used to key a rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByUserOrIP keys identified callers by user id and everyone else by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id := IdentityFrom(c); !id.Anonymous() {
			return "user:" + id.ID
		}
		return "ip:" + c.ClientIP()
	}
}

type limitSpec struct {
	rps   rate.Limit
	burst int
}

func newLimitSpec(rps float64, burst int) limitSpec {
	if burst <= 0 {
		burst = 1
	}
	return limitSpec{rps: rate.Limit(rps), burst: burst}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	base   limitSpec
	routes map[string]limitSpec // "METHOD route" -> budget
	keyFn  KeyFunc
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	lookups  uint64
}

// sweepEvery is how many lookups pass between idle-bucket sweeps.
const sweepEvery = 5000

// NewRateLimiter returns a limiter allowing rps requests per second with the
// given burst for every key. Burst values <= 0 become 1.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if keyFn == nil {
		keyFn = KeyByUserOrIP()
	}
	return &RateLimiter{
		base:     newLimitSpec(rps, burst),
		routes:   map[string]limitSpec{},
		keyFn:    keyFn,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// WithRoute gives the registered route (as reported by gin's FullPath) its
// own budget. Requests to it draw from a separate bucket per caller.
func (rl *RateLimiter) WithRoute(method, route string, rps float64, burst int) *RateLimiter {
	rl.routes[method+" "+route] = newLimitSpec(rps, burst)
	return rl
}

// bucket picks the budget for the request and the map key of its bucket.
func (rl *RateLimiter) bucket(c *gin.Context) (string, limitSpec) {
	caller := rl.keyFn(c)
	if route := c.FullPath(); route != "" {
		scope := c.Request.Method + " " + route
		if spec, ok := rl.routes[scope]; ok {
			return scope + "|" + caller, spec
		}
	}
	return caller, rl.base
}

// getVisitor returns the limiter for key, creating it from spec if absent.
// Idle buckets are swept before the lookup so a stale entry for key itself
// is replaced rather than refreshed.
func (rl *RateLimiter) getVisitor(key string, spec limitSpec) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(spec.rps, spec.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay that must not consume tokens.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// reserve takes a token if one is available now. Otherwise it returns how
// long the caller should wait before retrying.
func reserve(lim *rate.Limiter, now time.Time) (bool, time.Duration) {
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		// Zero-rate bucket with the burst spent: it never refills.
		return false, time.Minute
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Handler returns the Gin middleware. Rejected requests get 429, a
// Retry-After in whole seconds, and the standard error body:
//
//	{"request_id": "...", "code": "rate_limited", "message": "rate limit exceeded"}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key, spec := rl.bucket(c)
		ok, wait := reserve(rl.getVisitor(key, spec), rl.now())
		if ok {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(routeLabel(c)).Inc()
		retry := int(math.Ceil(wait.Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
