package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lifeline_realtime_connections",
		Help: "Currently connected realtime clients.",
	})

	// droppedEvents counts events discarded because a client buffer was full.
	droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_realtime_dropped_total",
		Help: "Realtime events dropped due to slow consumers.",
	})

	relayedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_realtime_relay_total",
		Help: "Events exchanged with other instances through the relay.",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(connectionsGauge, droppedEvents, relayedEvents)
}
