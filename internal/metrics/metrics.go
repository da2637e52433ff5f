package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Claim and broadcast counters exported at /metrics.
var (
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_claims_total",
		Help: "Attendance claims processed, by outcome status.",
	}, []string{"status"})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_broadcasts_total",
		Help: "Events delivered to live subscribers.",
	})

	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_broadcast_failures_total",
		Help: "Subscriber pushes that failed and caused a prune.",
	})

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_subscribers",
		Help: "Currently connected live subscribers.",
	})

	Throttled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_throttled_requests_total",
		Help: "Requests rejected by the rate limiter.",
	})
)
