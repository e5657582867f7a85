package app

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/health"
	"github.com/bungeeguard/bungeeguard/internal/middleware"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// HandlerFlag is a bit mask of handlers that must be enabled in mux.
type HandlerFlag int

const (
	// HandlerVerify enables handshake verification API.
	HandlerVerify HandlerFlag = 1 << iota
	// HandlerPrometheus enables Prometheus handler.
	HandlerPrometheus
	// HandlerHealth enables Health check endpoint.
	HandlerHealth
)

var handlerText = map[HandlerFlag]string{
	HandlerVerify:     "verify",
	HandlerPrometheus: "prometheus",
	HandlerHealth:     "health",
}

func (flags HandlerFlag) String() string {
	flagsOrdered := []HandlerFlag{HandlerVerify, HandlerPrometheus, HandlerHealth}
	var endpoints []string
	for _, flag := range flagsOrdered {
		text, ok := handlerText[flag]
		if !ok {
			continue
		}
		if flags&flag != 0 {
			endpoints = append(endpoints, text)
		}
	}
	return strings.Join(endpoints, ", ")
}

// Handlers are the handlers Mux may mount.
type Handlers struct {
	Verify http.Handler
	Health health.Config
	// VerifyLimiter limits verify API requests. Nil means no limit.
	VerifyLimiter *rate.Limiter
}

func handlerFlags(cfg config.Config) HandlerFlag {
	var flags HandlerFlag
	if cfg.VerifyAPI.Enabled && cfg.HandshakeSource != config.SourcePacket {
		flags |= HandlerVerify
	}
	if cfg.Prometheus.Enabled {
		flags |= HandlerPrometheus
	}
	if cfg.Health.Enabled {
		flags |= HandlerHealth
	}
	return flags
}

// Mux returns a mux including set of handlers for BungeeGuard HTTP server.
func Mux(cfg config.Config, flags HandlerFlag, h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	var commonMiddlewares []alice.Constructor

	useLoggingMW := zerolog.GlobalLevel() <= zerolog.DebugLevel
	if useLoggingMW {
		commonMiddlewares = append(commonMiddlewares, middleware.LogRequest)
	}
	if cfg.Prometheus.Enabled {
		commonMiddlewares = append(commonMiddlewares, middleware.HTTPServerInstrumentation)
	}
	basicChain := alice.New(commonMiddlewares...)

	if flags&HandlerVerify != 0 && h.Verify != nil {
		verifyMiddlewares := append([]alice.Constructor{}, commonMiddlewares...)
		verifyMiddlewares = append(verifyMiddlewares, middleware.Post)
		if h.VerifyLimiter != nil {
			limiter := h.VerifyLimiter
			verifyMiddlewares = append(verifyMiddlewares, func(next http.Handler) http.Handler {
				return middleware.RateLimit(limiter, next)
			})
		}
		mux.Handle(handlerPrefix(cfg.VerifyAPI.HandlerPrefix), alice.New(verifyMiddlewares...).Then(h.Verify))
	}

	if flags&HandlerPrometheus != 0 {
		mux.Handle(handlerPrefix(cfg.Prometheus.HandlerPrefix), basicChain.Then(promhttp.Handler()))
	}

	if flags&HandlerHealth != 0 {
		mux.Handle(handlerPrefix(cfg.Health.HandlerPrefix), basicChain.Then(health.NewHandler(h.Health)))
	}

	return mux
}

func handlerPrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return "/"
	}
	return prefix
}

// runHTTPServer binds the HTTP server address and serves enabled handlers
// in background. It returns nil server when no handler is enabled.
func runHTTPServer(cfg config.Config, h Handlers) (*http.Server, error) {
	flags := handlerFlags(cfg)
	if flags == 0 {
		return nil, nil
	}
	addr := net.JoinHostPort(cfg.HTTP.Address, strconv.Itoa(cfg.HTTP.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("serving %s endpoints on %s", flags, ln.Addr())

	server := &http.Server{
		Addr:              addr,
		Handler:           Mux(cfg, flags, h),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("error serving HTTP")
		}
	}()
	return server, nil
}

func shutdownHTTPServer(ctx context.Context, server *http.Server) {
	if server == nil {
		return
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down HTTP server")
	}
}
