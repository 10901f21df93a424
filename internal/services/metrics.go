package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// matchCandidates records how many eligible donors each match found.
	matchCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifeline_match_candidates",
		Help:    "Eligible, compatible donors located per blood request.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 35, 50},
	})

	// pushResults counts fan-out outcomes by donor (delivered/skipped/failed).
	pushResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_push_results_total",
		Help: "Push notification outcomes per donor.",
	}, []string{"outcome"})

	requestsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_requests_expired_total",
		Help: "Pending requests moved to Expired by the sweeper.",
	})
)

func init() {
	prometheus.MustRegister(matchCandidates, pushResults, requestsExpired)
}
