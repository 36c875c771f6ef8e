package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vybe_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Messaging metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_messages_sent_total",
			Help: "Total messages sent, by final delivery status",
		},
		[]string{"status"}, // "sent" or "delivered"
	)

	MediaUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_media_uploads_total",
			Help: "Total media uploads",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	MessageDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_message_deletes_total",
			Help: "Total message deletions",
		},
		[]string{"mode"}, // "me" or "everyone"
	)

	// Gateway metrics
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vybe_gateway_connections",
			Help: "Currently open gateway connections",
		},
	)

	EventsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_gateway_events_pushed_total",
			Help: "Total events pushed to clients",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_gateway_events_dropped_total",
			Help: "Total events dropped (offline peer or full send buffer)",
		},
		[]string{"type"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vybe_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
