package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropReasonMapError    = "map_error"
	dropReasonUnsupported = "unsupported"
)

var (
	telegramReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "subroll_telegram_reconnects_total",
		Help: "The total number of Telegram session restarts after a failure",
	})

	knownPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "subroll_telegram_known_peers",
		Help: "Conversations and users the driver can address",
	})

	updatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_telegram_updates_total",
		Help: "Telegram updates consumed by the driver by type",
	}, []string{"type"})

	outboundFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_telegram_outbound_failures_total",
		Help: "Failed outbound RPCs by operation and classified kind",
	}, []string{"operation", "kind"})

	updatesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_telegram_updates_dropped_total",
		Help: "Raw Telegram updates not forwarded to the driver, by reason",
	}, []string{"reason"})
)
