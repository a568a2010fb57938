package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_ingested_total",
			Help: "Webhook ingestion outcomes",
		},
		[]string{"result"}, // ok|invalid
	)

	BroadcastFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcast_failures_total",
			Help: "Subscriber writes that failed and triggered removal",
		},
	)

	ConnectedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_subscribers",
			Help: "Currently attached push subscribers",
		},
	)

	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_token_refreshes_total",
			Help: "Token refresh attempts by protocol and outcome",
		},
		[]string{"protocol", "result"}, // primary|secondary , ok|error
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsIngested,
		BroadcastFailures,
		ConnectedSubscribers,
		TokenRefreshes,
	)
}
