package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultMetricsNamespace = "bungeeguard"

// Config contains metrics configuration.
type Config struct {
	// Namespace is the prometheus namespace for all metrics. If empty, defaults to "bungeeguard".
	Namespace string
	// ConstLabels are labels that will be added to all metrics as constant labels.
	ConstLabels map[string]string
	// Registerer is the prometheus registerer to use. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// Registry holds all metrics.
type Registry struct {
	config Config

	// Handshake metrics
	handshakeVerdicts *prometheus.CounterVec
	handshakeDuration *prometheus.HistogramVec

	// Token store metrics
	tokenStoreBootstrap prometheus.Counter
	tokenStoreReloads   *prometheus.CounterVec

	// Gateway metrics
	gatewayConnections         *prometheus.CounterVec
	gatewayInflightConnections prometheus.Gauge
}

func init() {
	// Unregistered collectors so that packages can be used without Init,
	// for example in tests.
	populate(newCollectors(Config{}))
}

// Init initializes the metrics registry with the provided configuration.
// It creates all metrics and registers them with the provided registerer.
// If registerer is nil, prometheus.DefaultRegisterer is used.
// Must be called before any traffic is served.
func Init(cfg Config) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	populate(reg)
	return nil
}

func populate(reg *Registry) {
	HandshakeVerdicts = reg.handshakeVerdicts
	HandshakeDuration = reg.handshakeDuration

	TokenStoreBootstrap = reg.tokenStoreBootstrap
	TokenStoreReloads = reg.tokenStoreReloads

	GatewayConnections = reg.gatewayConnections
	GatewayInflightConnections = reg.gatewayInflightConnections
}

func newCollectors(cfg Config) *Registry {
	metricsNamespace := cfg.Namespace
	if metricsNamespace == "" {
		metricsNamespace = defaultMetricsNamespace
	}

	constLabels := prometheus.Labels(cfg.ConstLabels)

	m := &Registry{
		config: cfg,
	}

	m.handshakeVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "handshake",
		Name:        "verdicts_total",
		Help:        "Number of verified handshakes by source and result.",
		ConstLabels: constLabels,
	}, []string{"source", "result"})

	m.handshakeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "handshake",
		Name:        "duration_seconds",
		Buckets:     []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		Help:        "Histogram of handshake decode and verify duration.",
		ConstLabels: constLabels,
	}, []string{"source"})

	m.tokenStoreBootstrap = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "tokenstore",
		Name:        "bootstrap_total",
		Help:        "Number of tokens learned by trust on first use.",
		ConstLabels: constLabels,
	})

	m.tokenStoreReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "tokenstore",
		Name:        "reloads_total",
		Help:        "Number of token store reloads by result.",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.gatewayConnections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "gateway",
		Name:        "connections_total",
		Help:        "Number of connections accepted by the gateway by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.gatewayInflightConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "gateway",
		Name:        "inflight_connections",
		Help:        "Number of connections currently handled by the gateway.",
		ConstLabels: constLabels,
	})

	return m
}

func newRegistry(cfg Config) (*Registry, error) {
	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := newCollectors(cfg)

	// Register all metrics
	var alreadyRegistered prometheus.AlreadyRegisteredError

	collectors := []prometheus.Collector{
		m.handshakeVerdicts,
		m.handshakeDuration,
		m.tokenStoreBootstrap,
		m.tokenStoreReloads,
		m.gatewayConnections,
		m.gatewayInflightConnections,
	}

	for _, collector := range collectors {
		err := registerer.Register(collector)
		if err != nil {
			// Ignore if already registered (allows re-initialization in tests)
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
		}
	}

	return m, nil
}
