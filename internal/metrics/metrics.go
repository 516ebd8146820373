package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "furnivox_commands_processed_total",
			Help: "Total number of voice commands turned into actions",
		},
		[]string{"action"},
	)

	ReasonerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "furnivox_reasoner_failures_total",
			Help: "Total number of failed or rejected reasoner replies",
		},
		[]string{"reason"},
	)

	ReasonerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "furnivox_reasoner_duration_seconds",
			Help:    "Duration of reasoner calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"reasoner"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "furnivox_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	AssetBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "furnivox_asset_bytes_served_total",
			Help: "Total number of model file bytes streamed to clients",
		},
	)

	WebsocketSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "furnivox_websocket_sessions_active",
			Help: "Number of open websocket command sessions",
		},
	)
)
