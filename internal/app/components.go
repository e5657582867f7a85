package app

import (
	"errors"
	"fmt"

	"github.com/bungeeguard/bungeeguard/internal/api"
	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/gateway"
	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/health"
	"github.com/bungeeguard/bungeeguard/internal/messages"
	"github.com/bungeeguard/bungeeguard/internal/source"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"

	"golang.org/x/time/rate"
)

var errNoTokens = errors.New("no allowed tokens configured")

// components are built from configuration before anything listens.
type components struct {
	store    *tokenstore.Store
	messages *messages.Messages
	// event is nil when the verify API is not served.
	event source.HandshakeSource
	// packet is nil when the gateway does not run.
	packet source.HandshakeSource
}

func newComponents(cfg config.Config, configFile string) (*components, error) {
	store, err := newTokenStore(cfg, configFile)
	if err != nil {
		return nil, err
	}
	msgs, err := newMessages(cfg)
	if err != nil {
		return nil, err
	}
	event, packet, err := newSources(cfg, store)
	if err != nil {
		return nil, err
	}
	return &components{store: store, messages: msgs, event: event, packet: packet}, nil
}

// newTokenStore loads allowed tokens of cfg. configFile is where tokens are
// reloaded from and, under trust-first-use, where a learned token is saved.
func newTokenStore(cfg config.Config, configFile string) (*tokenstore.Store, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	tokenFile := config.NewTokenFile(configFile)
	c := tokenstore.Config{Policy: policy, Source: tokenFile}
	if policy == tokenstore.PolicyTrustFirstUse {
		c.Persister = tokenFile
	}
	store := tokenstore.New(c)
	store.Load(cfg.AllowedTokens)
	return store, nil
}

func newMessages(cfg config.Config) (*messages.Messages, error) {
	return messages.New(messages.Config{
		NoData:       cfg.NoDataKickMessage,
		NoProperties: cfg.NoPropertiesKickMessage,
		InvalidToken: cfg.InvalidTokenKickMessage,
	})
}

// newSources builds a strategy for every enabled handshake source. At least
// one must be available.
func newSources(cfg config.Config, tokens handshake.TokenChecker) (event, packet source.HandshakeSource, err error) {
	redaction, err := cfg.Redaction()
	if err != nil {
		return nil, nil, err
	}
	var limiter *rate.Limiter
	if cfg.Log.RejectionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Log.RejectionsPerSecond), max(cfg.Log.RejectionsBurst, 1))
	}
	srcCfg := source.Config{
		Codec:             handshake.Codec{Redaction: redaction},
		Tokens:            tokens,
		RejectionLogLimit: limiter,
	}
	eventStrategy := source.New(config.SourceEvent, func() bool {
		return cfg.VerifyAPI.Enabled && cfg.HandshakeSource != config.SourcePacket
	}, srcCfg)
	packetStrategy := source.New(config.SourcePacket, func() bool {
		return cfg.Gateway.Enabled && cfg.HandshakeSource != config.SourceEvent
	}, srcCfg)

	if _, err := source.Select(eventStrategy, packetStrategy); err != nil {
		return nil, nil, fmt.Errorf("%w: enable verify_api or gateway", err)
	}
	if eventStrategy.Available() {
		event = eventStrategy
	}
	if packetStrategy.Available() {
		packet = packetStrategy
	}
	return event, packet, nil
}

func gatewayConfig(cfg config.Config) gateway.Config {
	c := gateway.Config{
		Listen:      cfg.Gateway.Listen,
		Backend:     cfg.Gateway.Backend,
		ReadTimeout: cfg.Gateway.ReadTimeout.ToDuration(),
		DialTimeout: cfg.Gateway.DialTimeout.ToDuration(),
	}
	if cfg.Gateway.ConnectionsPerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(cfg.Gateway.ConnectionsPerSecond), max(cfg.Gateway.ConnectionsBurst, 1))
	}
	return c
}

func (c *components) handlers(cfg config.Config) Handlers {
	h := Handlers{
		Health: health.Config{Checks: map[string]func() error{}},
	}
	if c.event != nil {
		h.Verify = api.NewHandler(c.event, c.messages, api.Config{})
		if cfg.VerifyAPI.RequestsPerSecond > 0 {
			h.VerifyLimiter = rate.NewLimiter(rate.Limit(cfg.VerifyAPI.RequestsPerSecond), max(cfg.VerifyAPI.RequestsBurst, 1))
		}
	}
	if c.store.Policy() == tokenstore.PolicyFixed {
		h.Health.Checks["tokens"] = func() error {
			if c.store.Len() == 0 {
				return errNoTokens
			}
			return nil
		}
	}
	return h
}
