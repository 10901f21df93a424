// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels are
// kept bounded:
//
//   - method: HTTP verb
//   - route:  the registered Gin route (e.g. /api/v1/requests/:id/responses),
//     or "unmatched" when nothing matched so scanners cannot mint series
//   - status: numeric status code as a string
//
// Server-sent event streams stay open for minutes, so their lifetime is
// recorded in a separate histogram instead of skewing request latency.
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeline_http_request_duration_seconds",
			Help:    "Latency of non-streaming HTTP requests.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifeline_http_requests_inflight",
			Help: "HTTP requests currently being served, open streams included.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifeline_http_response_size_bytes",
			Help:    "Size of non-streaming HTTP responses.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 7), // 256B..1MiB
		},
		[]string{"method", "route"},
	)

	streamLifetime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifeline_http_stream_duration_seconds",
			Help:    "How long event-stream clients stayed connected.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
		[]string{"route"},
	)

	idemReplays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifeline_http_idempotent_replays_total",
			Help: "Requests answered from a stored idempotency record.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, streamLifetime, rateLimited, idemReplays)
}

// routeLabel is the registered route or "unmatched".
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

func isEventStream(c *gin.Context) bool {
	return strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream")
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
//	r := gin.New()
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeLabel(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if IsReplay(c) {
			idemReplays.WithLabelValues(route).Inc()
		}

		if isEventStream(c) {
			streamLifetime.Observe(time.Since(start).Seconds())
			return
		}
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written (e.g. 204).
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, route).Observe(float64(size))
		}
	}
}
