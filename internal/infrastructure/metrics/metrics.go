// Package metrics provides Prometheus metrics for the notification-server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks sockets held by this process.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of WebSocket connections currently held by this process",
		},
	)

	// ConnectionsAdmitted tracks successfully admitted connections.
	ConnectionsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_connections_admitted_total",
			Help: "Total number of WebSocket connections admitted",
		},
	)

	// ConnectionsRejected tracks connections refused during the handshake.
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_connections_rejected_total",
			Help: "Total number of WebSocket connections rejected during admission",
		},
		[]string{"reason"},
	)

	// EventsDelivered tracks events written to local sockets.
	EventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_events_delivered_total",
			Help: "Total number of events delivered to local sockets",
		},
	)

	// EventsDropped tracks per-connection delivery failures.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_dropped_total",
			Help: "Total number of events dropped instead of delivered",
		},
		[]string{"reason"},
	)

	// BusPublishFailures tracks failed fan-out bus publishes.
	BusPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_bus_publish_failures_total",
			Help: "Total number of fan-out bus publish failures",
		},
	)

	// HTTPRequestsTotal tracks completed HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "endpoint", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ws_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// DeliveryRequests tracks inbound delivery RPCs by pattern.
	DeliveryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_delivery_requests_total",
			Help: "Total number of delivery RPC requests consumed",
		},
		[]string{"pattern"},
	)
)

// RecordConnectionAdmitted increments admission metrics.
func RecordConnectionAdmitted() {
	ConnectionsAdmitted.Inc()
	ActiveConnections.Inc()
}

// RecordConnectionClosed decrements the active connection gauge.
func RecordConnectionClosed() {
	ActiveConnections.Dec()
}

// RecordConnectionRejected counts a handshake rejection by reason.
func RecordConnectionRejected(reason string) {
	ConnectionsRejected.WithLabelValues(reason).Inc()
}

// RecordEventDelivered counts a successful local delivery.
func RecordEventDelivered() {
	EventsDelivered.Inc()
}

// RecordEventDropped counts a dropped delivery by reason.
func RecordEventDropped(reason string) {
	EventsDropped.WithLabelValues(reason).Inc()
}

// RecordBusPublishFailure counts a failed bus publish.
func RecordBusPublishFailure() {
	BusPublishFailures.Inc()
}

// RecordHTTPRequest records a completed HTTP request with its latency.
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// RecordDeliveryRequest counts an inbound delivery RPC by pattern.
func RecordDeliveryRequest(pattern string) {
	DeliveryRequests.WithLabelValues(pattern).Inc()
}
