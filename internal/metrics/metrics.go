package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Streaming metrics
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flare_events_emitted_total",
			Help: "Total number of events accepted for distribution by channel",
		},
		[]string{"channel"},
	)

	EventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flare_events_delivered_total",
			Help: "Total number of events delivered to clients",
		},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flare_events_dropped_total",
			Help: "Total number of events dropped by reason (filter, rate_limit, no_clients)",
		},
		[]string{"reason"},
	)

	DeliveryFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flare_delivery_failures_total",
			Help: "Total number of transport send failures",
		},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flare_queue_depth",
			Help: "Current number of events waiting in the ingestion queue",
		},
	)

	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flare_connected_clients",
			Help: "Current number of clients with an active transport",
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flare_batch_size_events",
			Help:    "Number of events per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 15, 20},
		},
	)

	CompressionSavings = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flare_compression_savings_ratio",
			Help:    "Fraction of bytes saved on compressed payloads",
			Buckets: []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9},
		},
	)

	// Upstream metrics
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flare_upstream_requests_total",
			Help: "Total upstream requests by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	UpstreamHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flare_upstream_health_score",
			Help: "Health score per strategy in [0,1]",
		},
		[]string{"strategy"},
	)

	CircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flare_circuit_state",
			Help: "Circuit breaker state (0 = closed, 1 = open, 2 = half-open)",
		},
	)

	// Reconnection metrics
	Reconnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flare_reconnections_total",
			Help: "Total reconnection attempts by outcome (restored, exhausted, expired)",
		},
		[]string{"outcome"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flare_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flare_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsEmitted)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(DeliveryFailures)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(CompressionSavings)
	prometheus.MustRegister(UpstreamRequests)
	prometheus.MustRegister(UpstreamHealth)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(Reconnections)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
