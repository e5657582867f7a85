package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"
)

// Handshake sources accepted by handshake_source.
const (
	SourceAuto   = "auto"
	SourceEvent  = "event"
	SourcePacket = "packet"
)

// Validate validates config and returns error if problems found
func (c Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.Redaction(); err != nil {
		return err
	}
	switch c.HandshakeSource {
	case "", SourceAuto:
	case SourceEvent:
		if !c.VerifyAPI.Enabled {
			return errors.New("handshake source event requires verify_api to be enabled")
		}
	case SourcePacket:
		if !c.Gateway.Enabled {
			return errors.New("handshake source packet requires gateway to be enabled")
		}
	default:
		return fmt.Errorf("unknown handshake source: %s", c.HandshakeSource)
	}
	if err := validateGateway(c); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	for name, prefix := range map[string]string{
		"verify_api": c.VerifyAPI.HandlerPrefix,
		"prometheus": c.Prometheus.HandlerPrefix,
		"health":     c.Health.HandlerPrefix,
	} {
		if prefix != "" && !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%s handler prefix must start with /: %s", name, prefix)
		}
	}
	if c.Log.RejectionsPerSecond < 0 {
		return errors.New("log rejections_per_second can not be negative")
	}
	return nil
}

func validateGateway(c Config) error {
	if !c.Gateway.Enabled {
		return nil
	}
	if c.Gateway.Backend == "" {
		return errors.New("backend address required")
	}
	if _, _, err := net.SplitHostPort(c.Gateway.Backend); err != nil {
		return fmt.Errorf("invalid backend address: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.Gateway.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if c.Gateway.ReadTimeout < 0 || c.Gateway.DialTimeout < 0 {
		return errors.New("timeouts can not be negative")
	}
	if c.Gateway.ConnectionsPerSecond < 0 {
		return errors.New("connections_per_second can not be negative")
	}
	return nil
}

// Policy returns the configured token policy.
func (c Config) Policy() (tokenstore.Policy, error) {
	return tokenstore.ParsePolicy(c.TokenPolicy)
}

// Redaction returns the configured token redaction for log output.
func (c Config) Redaction() (handshake.Redaction, error) {
	return handshake.ParseRedaction(c.Log.TokenRedaction)
}
