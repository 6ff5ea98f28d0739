package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	realtimeConnectionsActive   prometheus.Gauge
	realtimeRoomJoinsTotal      prometheus.Counter
	realtimeEventsPublished     *prometheus.CounterVec
	realtimeDeliveriesDropped   *prometheus.CounterVec
	chatMessagesPostedTotal     *prometheus.CounterVec
	chatReactionsTotal          *prometheus.CounterVec
	chatNotificationsTotal      *prometheus.CounterVec
	chatNotificationFailedTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		realtimeConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of admitted realtime connections.",
		})

		realtimeRoomJoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_room_joins_total",
			Help: "Total number of room joins performed by connections.",
		})

		realtimeEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total number of events published through the room bus.",
		}, []string{"event"})

		realtimeDeliveriesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_deliveries_dropped_total",
			Help: "Events dropped for a single connection because its queue was full.",
		}, []string{"event"})

		chatMessagesPostedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Total number of messages persisted, by scope type.",
		}, []string{"scope"})

		chatReactionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_reactions_total",
			Help: "Total number of reaction mutations, by operation.",
		}, []string{"op"})

		chatNotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_notifications_created_total",
			Help: "Total number of notification rows created, by kind.",
		}, []string{"kind"})

		chatNotificationFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_notifications_failed_total",
			Help: "Notification rows that could not be persisted for a recipient.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			realtimeConnectionsActive,
			realtimeRoomJoinsTotal,
			realtimeEventsPublished,
			realtimeDeliveriesDropped,
			chatMessagesPostedTotal,
			chatReactionsTotal,
			chatNotificationsTotal,
			chatNotificationFailedTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RealtimeConnectionsActive tracks admitted connections.
func RealtimeConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnectionsActive
}

// RealtimeRoomJoins counts room joins.
func RealtimeRoomJoins() prometheus.Counter {
	RegisterMetrics()
	return realtimeRoomJoinsTotal
}

// RealtimeEventsPublished counts bus publishes by event name.
func RealtimeEventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsPublished
}

// RealtimeDeliveriesDropped counts per-connection drops by event name.
func RealtimeDeliveriesDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDeliveriesDropped
}

// ChatMessagesPosted counts persisted messages.
func ChatMessagesPosted() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesPostedTotal
}

// ChatReactions counts reaction mutations.
func ChatReactions() *prometheus.CounterVec {
	RegisterMetrics()
	return chatReactionsTotal
}

// ChatNotificationsCreated counts persisted notification rows.
func ChatNotificationsCreated() *prometheus.CounterVec {
	RegisterMetrics()
	return chatNotificationsTotal
}

// ChatNotificationsFailed counts recipients whose notification row failed to persist.
func ChatNotificationsFailed() prometheus.Counter {
	RegisterMetrics()
	return chatNotificationFailedTotal
}
