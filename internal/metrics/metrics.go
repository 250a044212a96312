package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_core_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Business metrics
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_messages_ingested_total",
			Help: "Messages accepted by the message engine",
		},
		[]string{"type", "result"}, // result: "new" or "duplicate"
	)

	Receipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_receipts_total",
			Help: "Watermark submissions by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: accepted, ignored, dropped
	)

	Publishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_publishes_total",
			Help: "Broker publishes by topic family",
		},
		[]string{"family", "result"}, // result: ok, error, not_ready, dropped
	)

	PushJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_push_jobs_total",
			Help: "Push jobs handed to the notification gateway",
		},
		[]string{"result"}, // enqueued, sent, failed, dropped, skipped
	)

	IngressEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_ingress_events_total",
			Help: "Receipt ingress events from the broker",
		},
		[]string{"result"}, // dispatched, malformed, throttled
	)

	DomainEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_core_domain_events_total",
			Help: "Domain events consumed from kafka",
		},
		[]string{"topic", "result"},
	)

	BrokerConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_core_broker_connected",
			Help: "1 when the broker connection is up",
		},
	)
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
