package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/lifeline-backend/internal/http/middleware"
)

var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderUserID, middleware.HeaderUserRole, middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
)

// corsHandlers returns the CORS chain. With no origins configured every
// origin is allowed and "*" is set even when the request has no Origin.
// Otherwise allowed origins are echoed back with Vary: Origin.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: corsExpose,
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Writer.Header().Set("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}
