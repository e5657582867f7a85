// Package source selects how raw forwarding handshakes reach the verifier.
//
// Hosts deliver handshakes in different ways: as a structured event handed
// to an adapter, or as a packet read off the wire before the backend sees
// it. Each way is a HandshakeSource. The strategy is chosen once at startup
// from a ranked list, the first available source wins.
package source

import (
	"errors"
	"strings"
	"time"

	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var ErrNoSource = errors.New("no handshake source available")

// HandshakeSource turns a raw forwarding handshake into a verdict.
type HandshakeSource interface {
	// Name is a short name used in logs and metrics.
	Name() string
	// Available reports whether the host can deliver handshakes this way.
	Available() bool
	// Verify decodes and verifies raw. A returned error is a *handshake.Failure.
	Verify(raw string) (handshake.Verified, error)
}

// Config of a Strategy.
type Config struct {
	Codec  handshake.Codec
	Tokens handshake.TokenChecker
	// RejectionLogLimit limits rejection log lines. Nil logs every rejection.
	RejectionLogLimit *rate.Limiter
}

// Strategy is a HandshakeSource backed by the handshake codec. Strategies only
// differ in name and availability.
type Strategy struct {
	name      string
	available func() bool
	config    Config
}

// New creates a Strategy. available may be nil for an always available one.
func New(name string, available func() bool, c Config) *Strategy {
	return &Strategy{name: name, available: available, config: c}
}

func (s *Strategy) Name() string {
	return s.name
}

func (s *Strategy) Available() bool {
	return s.available == nil || s.available()
}

// Verify runs the codec, records the verdict and logs rejections.
func (s *Strategy) Verify(raw string) (handshake.Verified, error) {
	started := time.Now()
	v, err := s.config.Codec.DecodeAndVerify(raw, s.config.Tokens)
	if err != nil {
		f, _ := handshake.AsFailure(err)
		var reason handshake.Reason
		if f != nil {
			reason = f.Reason
		}
		metrics.ObserveHandshake(started, s.name, reasonLabel(reason))
		if s.config.RejectionLogLimit == nil || s.config.RejectionLogLimit.Allow() {
			event := log.Warn().Str("source", s.name)
			if f != nil {
				event = event.Str("reason", f.Reason.String()).Str("connection", f.Context)
			}
			event.Msg("denied connection")
		}
		return handshake.Verified{}, err
	}
	metrics.ObserveHandshake(started, s.name, "")
	log.Debug().Str("source", s.name).Str("connection", v.ID.String()+" @ "+v.ClientAddressHostname).Msg("handshake verified")
	return v, nil
}

func reasonLabel(r handshake.Reason) string {
	if r == 0 {
		return "error"
	}
	return strings.ToLower(r.String())
}

// Select returns the first available source.
func Select(sources ...HandshakeSource) (HandshakeSource, error) {
	for _, s := range sources {
		if s != nil && s.Available() {
			log.Info().Str("source", s.Name()).Msg("handshake source selected")
			return s, nil
		}
	}
	return nil, ErrNoSource
}
