// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"organization_id"},
	)

	// MessagesTotal tracks total messages persisted.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"organization_id", "role"},
	)

	// AgentStateVersionsTotal tracks agent state upserts.
	AgentStateVersionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_state_versions_total",
			Help: "Total agent state versions written",
		},
		[]string{"agent_type"},
	)

	// AgentInteractionsTotal tracks terminal outcomes of agent communications.
	AgentInteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_interactions_total",
			Help: "Agent communication outcomes",
		},
		[]string{"agent_type", "outcome"},
	)

	// ContextExtractionsTotal tracks which extraction stage produced a result.
	ContextExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "context_extractions_total",
			Help: "Context extractions by stage",
		},
		[]string{"stage"},
	)

	// StoreRetriesTotal tracks retried storage operations.
	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_retries_total",
			Help: "Storage operation retries after transient failures",
		},
		[]string{"operation"},
	)

	// StoreOperationDuration tracks storage operation latency including retries.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Storage operation duration including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "status"},
	)

	// DegradedResultsTotal tracks non-persisted results served from the
	// fallback cache or fabricated as placeholders.
	DegradedResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_degraded_results_total",
			Help: "Degraded (non-persisted) results returned",
		},
		[]string{"operation", "source"},
	)

	// FallbackCacheEntries tracks the size of the fallback cache.
	FallbackCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fallback_cache_entries",
			Help: "Entries held by the degraded-mode cache",
		},
	)

	// EventStreamConnections tracks open event stream (SSE) connections.
	EventStreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_stream_connections",
			Help: "Open conversation event streams",
		},
	)

	// EventsPublishedTotal tracks conversation events sent to JetStream.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_events_published_total",
			Help: "Conversation events published",
		},
		[]string{"kind", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStoreOperation records the latency and final status of a storage operation.
func RecordStoreOperation(operation, status string, duration float64) {
	StoreOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordInteraction records a terminal agent communication outcome.
func RecordInteraction(agentType string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	AgentInteractionsTotal.WithLabelValues(agentType, outcome).Inc()
}
