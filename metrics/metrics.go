package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AttemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_attempts_started_total",
		Help: "Bridge attempts that passed validation",
	})

	AttemptsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_attempts_rejected_total",
			Help: "Bridge requests rejected before an attempt was created",
		},
		[]string{"reason"},
	)

	AttemptsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_attempts_resolved_total",
			Help: "Bridge attempts that reached a terminal state",
		},
		[]string{"outcome", "kind"},
	)

	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_gateway_calls_total",
			Help: "Contract gateway calls by operation and result",
		},
		[]string{"op", "result"},
	)

	RelayChannelConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_relay_channel_connected",
		Help: "Relay channel status (1=open, 0=closed)",
	})

	RelayEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_events_received_total",
			Help: "Relay events received over the channel",
		},
		[]string{"type"},
	)

	RelayHeartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_relay_heartbeats_total",
		Help: "Heartbeats written to the relay channel",
	})

	RelayReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_reconnects_total",
			Help: "Reconnect attempts triggered by user interaction",
		},
		[]string{"result"},
	)

	RelaySubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_submissions_total",
			Help: "Relay record submissions by result",
		},
		[]string{"result"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})
)
