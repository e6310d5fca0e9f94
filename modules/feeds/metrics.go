package feeds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultEmpty   = "empty"
	resultHit     = "hit"
	resultRefresh = "refresh"
	resultFailed  = "failed"
)

var (
	feedPagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_feed_pages_fetched_total",
		Help: "The total number of listing pages requested, by result",
	}, []string{"result"})

	feedPopulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_feed_populations_total",
		Help: "The total number of multi-page feed populations, by result",
	}, []string{"result"})

	feedCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_feed_cache_lookups_total",
		Help: "The total number of get-or-refresh cache lookups, by result",
	}, []string{"result"})

	feedCachedItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "subroll_feed_cached_items",
		Help: "The number of cached items per feed after its latest population",
	}, []string{"feed"})

	gateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_gate_decisions_total",
		Help: "The total number of reaction gate decisions, by decision",
	}, []string{"decision"})

	reactionActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_reaction_actions_total",
		Help: "The total number of dispatched reaction actions, by action",
	}, []string{"action"})

	outboundRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "subroll_outbound_retries_total",
		Help: "The total number of outbound operations retried after a retryable failure",
	}, []string{"operation"})
)
