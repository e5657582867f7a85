package metrics

import (
	"time"
)

const resultOK = "ok"

// ObserveHandshake records the verdict of a single handshake verification.
// An empty reason means the handshake was accepted.
func ObserveHandshake(started time.Time, source string, reason string) {
	result := reason
	if result == "" {
		result = resultOK
	}
	HandshakeVerdicts.WithLabelValues(source, result).Inc()
	HandshakeDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// IncGatewayConnection increments the gateway connection counter for outcome.
func IncGatewayConnection(outcome string) {
	GatewayConnections.WithLabelValues(outcome).Inc()
}
