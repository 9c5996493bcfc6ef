// Package metrics holds the domain Prometheus collectors. Collectors are
// package-level and registered via promauto; the /metrics endpoint is wired
// in the server package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_queries_total",
			Help: "Total number of processed queries",
		},
		[]string{"complexity", "intent", "strategy", "status"},
	)

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchyard_query_duration_seconds",
			Help:    "End-to-end query processing latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"complexity", "strategy"},
	)

	providerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_provider_requests_total",
			Help: "Total number of upstream provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	providerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "switchyard_provider_request_duration_seconds",
			Help:    "Upstream provider call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider", "model"},
	)

	tokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_tokens_total",
			Help: "Total tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: input, output
	)

	costTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_cost_dollars_total",
			Help: "Total spend in dollars",
		},
		[]string{"provider", "model"},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchyard_cache_hits_total",
			Help: "Total number of semantic cache hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchyard_cache_misses_total",
			Help: "Total number of semantic cache misses",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchyard_cache_entries",
			Help: "Current number of cached entries",
		},
	)

	cascadeEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_cascade_escalations_total",
			Help: "Total number of cascade escalations",
		},
		[]string{"from_model", "to_model"},
	)

	budgetPercentUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchyard_budget_percent_used",
			Help: "Budget utilisation per period in percent",
		},
		[]string{"period"},
	)

	budgetSpent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "switchyard_budget_spent_dollars",
			Help: "Spend per period in dollars",
		},
		[]string{"period"},
	)

	emergencyMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchyard_emergency_mode",
			Help: "Whether budget emergency mode is latched (1 = on)",
		},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "switchyard_errors_total",
			Help: "Total number of terminal request errors",
		},
		[]string{"kind"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "switchyard_ws_connections",
			Help: "Number of connected websocket subscribers",
		},
	)

	wsDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "switchyard_ws_dropped_messages_total",
			Help: "Messages dropped to slow websocket subscribers",
		},
	)
)

// RecordQuery records one completed (or failed) query.
func RecordQuery(complexity, intent, strategy, status string, durationSeconds float64) {
	queriesTotal.WithLabelValues(complexity, intent, strategy, status).Inc()
	queryDuration.WithLabelValues(complexity, strategy).Observe(durationSeconds)
}

// RecordProviderCall records one upstream call.
func RecordProviderCall(provider, model, status string, durationSeconds float64) {
	providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if status == "success" {
		providerRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	}
}

// RecordUsage records token and dollar spend for one call.
func RecordUsage(provider, model string, inputTokens, outputTokens int, cost float64) {
	tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	costTotal.WithLabelValues(provider, model).Add(cost)
}

func RecordCacheHit()  { cacheHits.Inc() }
func RecordCacheMiss() { cacheMisses.Inc() }

// SetCacheEntries updates the cache size gauge.
func SetCacheEntries(n int) { cacheEntries.Set(float64(n)) }

// RecordCascadeEscalation records one quality-gate escalation.
func RecordCascadeEscalation(fromModel, toModel string) {
	cascadeEscalations.WithLabelValues(fromModel, toModel).Inc()
}

// SetBudget updates the per-period budget gauges.
func SetBudget(period string, spent, percentUsed float64) {
	budgetSpent.WithLabelValues(period).Set(spent)
	budgetPercentUsed.WithLabelValues(period).Set(percentUsed)
}

// SetEmergencyMode updates the emergency latch gauge.
func SetEmergencyMode(on bool) {
	if on {
		emergencyMode.Set(1)
	} else {
		emergencyMode.Set(0)
	}
}

// RecordError records a terminal error by taxonomy kind.
func RecordError(kind string) { errorsTotal.WithLabelValues(kind).Inc() }

func WSConnected()    { wsConnections.Inc() }
func WSDisconnected() { wsConnections.Dec() }

// RecordWSDropped adds to the dropped-message counter.
func RecordWSDropped(n uint64) { wsDroppedMessages.Add(float64(n)) }
