// Package httpapi assembles the Gin engine: the middleware chain, the health
// and metrics endpoints, and the versioned lifeline API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/lifeline-backend/docs"
	"github.com/tbourn/lifeline-backend/internal/config"
	"github.com/tbourn/lifeline-backend/internal/http/handlers"
	"github.com/tbourn/lifeline-backend/internal/http/middleware"
	"github.com/tbourn/lifeline-backend/internal/repo"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes installs middleware and every endpoint on r.
//
// Order:
//  1. otelgin span
//  2. request id
//  3. access log (owns the request-scoped logger)
//  4. panic recovery
//  5. body cap
//  6. Prometheus
//  7. gateway identity
//  8. idempotency key check; a replay skips the rate limiter
//  9. rate limiter, with its own budget for request creation
//  10. CORS, security headers, gzip (never on /events)
func RegisterRoutes(r *gin.Engine, cfg config.Config, deps handlers.Deps) {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key"}}),
		middleware.Recovery(),
		limitBody(maxBodyBytes),
		middleware.Metrics(),
		middleware.Identity(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, replayLookup(deps.DB)),
	)

	limiter := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	if cfg.CreateBurst > 0 {
		limiter.WithRoute(http.MethodPost, joinPath(base, "/requests"), cfg.CreateRPS, cfg.CreateBurst)
	}
	r.Use(limiter.Handler())

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		NoStorePrefixes: []string{
			joinPath(base, "/donors/me"),
			joinPath(base, "/donations"),
			joinPath(base, "/admin"),
		},
	}))
	// A gzip writer buffers, which would stall the event stream.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(base, "/events"), "/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", healthHandler(deps.DB, deps.Events))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = base
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	mountAPI(groupWithPrefix(r, base), handlers.New(deps))
}

func mountAPI(api *gin.RouterGroup, h *handlers.Handlers) {
	donors := api.Group("/donors")
	donors.POST("", h.RegisterDonor)
	donors.GET("/search", h.SearchDonors)
	donors.GET("/me", h.GetMe)
	donors.PATCH("/me", h.UpdateMe)
	donors.PUT("/me/location", h.UpdateMyLocation)
	donors.PUT("/me/push-token", h.SetMyPushToken)

	requests := api.Group("/requests")
	requests.POST("", h.CreateRequest)
	requests.GET("", h.ListRequests)
	requests.GET("/mine", h.MyRequests)
	requests.GET("/:id", h.GetRequest)
	requests.PATCH("/:id/status", h.UpdateRequestStatus)
	requests.POST("/:id/responses", h.RespondToRequest)
	requests.PATCH("/:id/responses/:donorId", h.AdvanceResponse)

	admin := api.Group("/admin/donors")
	admin.GET("", h.ListDonorsForReview)
	admin.POST("/:id/verify", h.VerifyDonor)
	admin.POST("/:id/reject", h.RejectDonor)

	api.POST("/donations", h.RecordDonation)
	api.GET("/donations/mine", h.MyDonations)

	api.GET("/events", h.StreamEvents)
	api.POST("/events/:connId/subscriptions", h.Subscribe)
	api.DELETE("/events/:connId/subscriptions", h.Unsubscribe)
}

// replayLookup reports whether a live idempotency record exists for the
// claim. Without a database nothing is ever replayed.
func replayLookup(db *gorm.DB) middleware.ReplayLookup {
	return func(ctx context.Context, cl middleware.IdempotencyClaim, now time.Time) (bool, error) {
		if db == nil {
			return false, nil
		}
		_, err := repo.GetIdempotency(ctx, db, cl.UserID, cl.Scope, cl.Key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
}

// limitBody caps request bodies; reads past maxBytes fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix; "" and "/" mean root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "/" {
		prefix = ""
	}
	return r.Group(prefix)
}

func joinPath(prefix, p string) string {
	if prefix == "/" {
		prefix = ""
	}
	return prefix + p
}
