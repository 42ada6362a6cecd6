package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics of the local console API
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Backend API metrics
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Latency of requests to the backend API in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)

	// Session metrics
	TokenRenewalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_renewals_total",
			Help: "Token renewals by outcome",
		},
		[]string{"outcome"},
	)

	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_verifications_total",
			Help: "Session verifications by outcome",
		},
		[]string{"outcome"},
	)

	// Real-time channel metrics
	ChannelState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_channel_state",
			Help: "State of the shared real-time channel (0 uninitialized, 1 connecting, 2 connected, 3 reconnecting, 4 disconnected)",
		},
	)

	ChannelReconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reconnect_attempts_total",
			Help: "Reconnection attempts of the shared channel by outcome",
		},
		[]string{"outcome"},
	)

	ChannelEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_received_total",
			Help: "Events received on the shared channel",
		},
		[]string{"event"},
	)

	ChannelHandlersRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_handlers_registered",
			Help: "Handlers currently registered on the shared channel",
		},
		[]string{"event"},
	)

	// View metrics
	ViewRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_refreshes_total",
			Help: "View data refreshes by mode and outcome",
		},
		[]string{"view", "mode", "outcome"},
	)

	ViewResponsesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_responses_discarded_total",
			Help: "View responses dropped because they were stale or the view was unmounted",
		},
		[]string{"view", "reason"},
	)
)
