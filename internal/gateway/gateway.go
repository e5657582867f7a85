// Package gateway implements a TCP intermediary placed in front of a backend
// server which has no handshake verification of its own.
//
// The gateway reads the first packet of every connection. Every handshake
// except a status ping is verified with a HandshakeSource: on success the packet is rewritten to
// carry the sanitized handshake and the connection is piped to the backend,
// on failure the client receives a login disconnect and the packet never
// reaches the backend. Status pings pass through untouched.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bungeeguard/bungeeguard/internal/messages"
	"github.com/bungeeguard/bungeeguard/internal/metrics"
	"github.com/bungeeguard/bungeeguard/internal/source"
	"github.com/bungeeguard/bungeeguard/internal/wire"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Connection outcomes, used as metric label values.
const (
	outcomeAccepted     = "accepted"
	outcomeDenied       = "denied"
	outcomePassthrough  = "passthrough"
	outcomeLegacyPing   = "legacy_ping"
	outcomeMalformed    = "malformed"
	outcomeRateLimited  = "rate_limited"
	outcomeBackendError = "backend_error"
)

const (
	defaultReadTimeout = 5 * time.Second
	defaultDialTimeout = 5 * time.Second
	// lingerTimeout bounds waiting for a denied client to read its disconnect.
	lingerTimeout = time.Second
)

// Config of Gateway.
type Config struct {
	// Listen is an address to accept client connections on.
	Listen string
	// Backend is an address of the backend server.
	Backend string
	// ReadTimeout limits the time a client has to send its handshake.
	ReadTimeout time.Duration
	// DialTimeout limits connecting to Backend.
	DialTimeout time.Duration
	// Limiter limits accepted connections. Nil means no limit.
	Limiter *rate.Limiter
}

// Gateway accepts client connections and forwards them to the backend.
type Gateway struct {
	config   Config
	source   source.HandshakeSource
	messages *messages.Messages

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// New creates Gateway. Verification goes through src, rejection texts come from msgs.
func New(c Config, src source.HandshakeSource, msgs *messages.Messages) *Gateway {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if msgs == nil {
		msgs, _ = messages.New(messages.Config{})
	}
	return &Gateway{
		config:   c,
		source:   src,
		messages: msgs,
	}
}

// Listen binds the listening socket. Run calls it when it was not called before.
func (g *Gateway) Listen() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", g.config.Listen)
	if err != nil {
		return err
	}
	g.ln = ln
	return nil
}

// Addr returns the listening address or nil before Listen.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Run accepts connections until ctx is done. In-flight connections are
// closed on shutdown and Run returns after all of them finished.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Listen(); err != nil {
		return err
	}
	g.mu.Lock()
	ln := g.ln
	g.mu.Unlock()

	log.Info().Str("listen", ln.Addr().String()).Str("backend", g.config.Backend).Str("source", g.source.Name()).Msg("gateway started")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				g.wg.Wait()
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if tempDelay > time.Second {
					tempDelay = time.Second
				}
				log.Warn().Err(err).Dur("retry_in", tempDelay).Msg("gateway accept error")
				time.Sleep(tempDelay)
				continue
			}
			g.wg.Wait()
			return err
		}
		tempDelay = 0
		if g.config.Limiter != nil && !g.config.Limiter.Allow() {
			metrics.IncGatewayConnection(outcomeRateLimited)
			_ = conn.Close()
			continue
		}
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.handle(ctx, conn)
		}()
	}
}

func (g *Gateway) handle(ctx context.Context, client net.Conn) {
	defer func() { _ = client.Close() }()
	metrics.GatewayInflightConnections.Inc()
	defer metrics.GatewayInflightConnections.Dec()

	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	remote := client.RemoteAddr().String()
	_ = client.SetReadDeadline(time.Now().Add(g.config.ReadTimeout))
	br := bufio.NewReader(client)

	first, err := br.Peek(1)
	if err != nil {
		log.Debug().Err(err).Str("remote", remote).Msg("connection closed before handshake")
		metrics.IncGatewayConnection(outcomeMalformed)
		return
	}
	if first[0] == wire.LegacyPing {
		_ = client.SetReadDeadline(time.Time{})
		g.pipe(ctx, client, br, nil, outcomeLegacyPing)
		return
	}

	payload, err := wire.ReadFrame(br)
	if err != nil {
		log.Debug().Err(err).Str("remote", remote).Msg("error reading handshake packet")
		metrics.IncGatewayConnection(outcomeMalformed)
		return
	}
	hs, err := wire.ParseHandshake(payload)
	if err != nil {
		log.Debug().Err(err).Str("remote", remote).Msg("error parsing handshake packet")
		metrics.IncGatewayConnection(outcomeMalformed)
		return
	}
	_ = client.SetReadDeadline(time.Time{})

	if hs.Intent == wire.IntentStatus {
		g.pipe(ctx, client, br, payload, outcomePassthrough)
		return
	}

	verified, err := g.source.Verify(hs.ServerAddress)
	if err != nil {
		metrics.IncGatewayConnection(outcomeDenied)
		g.disconnect(client, br, g.messages.ForError(err))
		return
	}
	hs.ServerAddress = verified.Encode()
	g.pipe(ctx, client, br, hs.Payload(), outcomeAccepted)
}

// disconnect sends a login disconnect with text and closes the connection
// after the client had a chance to read it.
func (g *Gateway) disconnect(client net.Conn, br *bufio.Reader, text string) {
	_ = client.SetWriteDeadline(time.Now().Add(lingerTimeout))
	if err := wire.WriteFrame(client, wire.LoginDisconnect(messages.ChatComponent(text))); err != nil {
		log.Debug().Err(err).Str("remote", client.RemoteAddr().String()).Msg("error writing disconnect")
		return
	}
	// Closing with unread input makes the peer see a reset instead of the
	// disconnect, so half-close and drain what the client already sent.
	if cw, ok := client.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = client.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, br)
}

// pipe connects client to the backend. first is written to the backend
// before anything else read from the client.
func (g *Gateway) pipe(ctx context.Context, client net.Conn, br *bufio.Reader, first []byte, outcome string) {
	dialer := net.Dialer{Timeout: g.config.DialTimeout}
	backend, err := dialer.DialContext(ctx, "tcp", g.config.Backend)
	if err != nil {
		log.Error().Err(err).Str("backend", g.config.Backend).Msg("error connecting to backend")
		metrics.IncGatewayConnection(outcomeBackendError)
		return
	}
	defer func() { _ = backend.Close() }()
	stop := context.AfterFunc(ctx, func() {
		_ = backend.Close()
	})
	defer stop()

	if first != nil {
		if err := wire.WriteFrame(backend, first); err != nil {
			log.Error().Err(err).Str("backend", g.config.Backend).Msg("error writing handshake to backend")
			metrics.IncGatewayConnection(outcomeBackendError)
			return
		}
	}
	metrics.IncGatewayConnection(outcome)

	var group errgroup.Group
	group.Go(func() error {
		_, err := io.Copy(backend, br)
		closeWrite(backend)
		return err
	})
	group.Go(func() error {
		_, err := io.Copy(client, backend)
		closeWrite(client)
		return err
	})
	if err := group.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Str("remote", client.RemoteAddr().String()).Msg("connection closed with error")
	}
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = c.Close()
}
