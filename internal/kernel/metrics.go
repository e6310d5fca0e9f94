package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	deliveryQueued  = "queued"
	deliveryDropped = "dropped"
	deliveryClosed  = "closed"

	failureError   = "error"
	failureTimeout = "timeout"
	failurePanic   = "panic"
)

var (
	busDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_bus_deliveries_total",
		Help: "Events offered to subscription queues by outcome",
	}, []string{"subscription", "result"})

	busHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "subroll_bus_handler_duration_seconds",
		Help:    "Time spent in subscription handlers",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
	}, []string{"subscription"})

	busHandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_bus_handler_failures_total",
		Help: "Subscription handler calls that returned an error or panicked",
	}, []string{"subscription", "reason"})
)
