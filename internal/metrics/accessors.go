package metrics

import "github.com/prometheus/client_golang/prometheus"

// Handshake metrics - exported for use by gateway and cli packages
var (
	HandshakeVerdicts *prometheus.CounterVec
	HandshakeDuration *prometheus.HistogramVec
)

// Token store metrics - exported for use by tokenstore package
var (
	TokenStoreBootstrap prometheus.Counter
	TokenStoreReloads   *prometheus.CounterVec
)

// Gateway metrics - exported for use by gateway package
var (
	GatewayConnections         *prometheus.CounterVec
	GatewayInflightConnections prometheus.Gauge
)
