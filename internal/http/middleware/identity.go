// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Authentication happens upstream at
// the gateway, which forwards the verified user id and role as trusted
// headers; Identity turns them into a domain.Identity once per request so
// handlers pass it explicitly to services.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/lifeline-backend/internal/domain"
)

const (
	// HeaderUserID carries the authenticated user id.
	HeaderUserID = "X-User-ID"
	// HeaderUserRole carries the authenticated user's role.
	HeaderUserRole = "X-User-Role"

	// AnonymousUserID buckets callers without an identity.
	AnonymousUserID = "anonymous"
)

const (
	ctxKeyUserID   = "userID"
	ctxKeyIdentity = "identity"
)

// Identity reads the gateway headers and stores the caller in the context.
// A missing user id yields an anonymous patient; "userID" is only set for
// identified callers so rate limiting falls back to the client IP.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := domain.Identity{
			ID:   strings.TrimSpace(c.GetHeader(HeaderUserID)),
			Role: domain.ParseRole(c.GetHeader(HeaderUserRole)),
		}
		if id.Anonymous() {
			id = domain.Identity{Role: domain.RolePatient}
		} else {
			c.Set(ctxKeyUserID, id.ID)
		}
		c.Set(ctxKeyIdentity, id)
		enrichLogger(c, func(l zerolog.Context) zerolog.Context {
			return l.Str("user_id", id.ID).Str("role", string(id.Role))
		})
		c.Next()
	}
}

// IdentityFrom returns the caller resolved by Identity, or an anonymous
// patient when the middleware did not run.
func IdentityFrom(c *gin.Context) domain.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{Role: domain.RolePatient}
}
