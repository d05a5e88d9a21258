package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for monitoring service health and the chain fallback
// rate.
var (
	DeliveriesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deliveries_created_total",
			Help: "Total number of deliveries created",
		},
	)

	StatusUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_status_updates_total",
			Help: "Total number of delivery status updates",
		},
	)

	LocationUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_location_updates_total",
			Help: "Total number of delivery location updates",
		},
	)

	ChainFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chain_fallback_total",
			Help: "Total number of mutations that used a locally generated transaction hash",
		},
	)

	TrackingLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tracking_lookups_total",
			Help: "Total number of tracking number lookups",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
)

// Register registers all Prometheus metrics.
func Register() {
	prometheus.MustRegister(DeliveriesCreatedTotal)
	prometheus.MustRegister(StatusUpdatesTotal)
	prometheus.MustRegister(LocationUpdatesTotal)
	prometheus.MustRegister(ChainFallbackTotal)
	prometheus.MustRegister(TrackingLookupsTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}
