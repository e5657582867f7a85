package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/bungeeguard/bungeeguard/internal/build"
	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/gateway"
	"github.com/bungeeguard/bungeeguard/internal/logging"
	"github.com/bungeeguard/bungeeguard/internal/metrics"
	"github.com/bungeeguard/bungeeguard/internal/service"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"
	"github.com/bungeeguard/bungeeguard/internal/tools"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

func Run(cmd *cobra.Command, configFile string) {
	dotEnvUsed := false
	if tools.FileExists(".env") {
		err := godotenv.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("error loading .env file")
		}
		dotEnvUsed = true
	}
	cfg, cfgMeta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting config")
	}

	ctx, serviceCancel := context.WithCancel(context.Background())
	defer serviceCancel()

	logCloseFn, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up logging")
	}
	defer logCloseFn()
	if cfgMeta.FileNotFound {
		log.Warn().Msg("config file not found, continue using environment and flag options")
	} else {
		absConfPath, _ := filepath.Abs(configFile)
		log.Info().Str("path", absConfPath).Msg("using config file")
		if dotEnvUsed {
			log.Info().Msg("environment variables have been loaded from .env file")
		}
	}
	err = tools.WritePidFile(cfg.PidFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error writing PID")
	}
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, i ...interface{}) {
		log.Info().Msgf(strings.ToLower(s), i...)
	}))

	log.Info().
		Str("version", build.Version).
		Str("runtime", runtime.Version()).
		Int("pid", os.Getpid()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Str("token_policy", cfg.TokenPolicy).
		Str("handshake_source", cfg.HandshakeSource).
		Msg("starting BungeeGuard")

	if build.Version == "0.0.0" {
		log.Warn().Msg("running a development build of BungeeGuard (version 0.0.0), ensure to use release build in production")
	}

	err = cfg.Validate()
	if err != nil {
		log.Fatal().Err(err).Msg("error validating config")
	}

	if cfg.Prometheus.Enabled {
		if err := metrics.Init(metrics.Config{}); err != nil {
			log.Fatal().Err(err).Msg("error initializing metrics")
		}
	}

	c, err := newComponents(cfg, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error initializing handshake verification")
	}
	log.Info().Str("policy", c.store.Policy().String()).Int("num_tokens", c.store.Len()).Msg("allowed tokens loaded")

	// Registered services are stopped after HTTP server shutdown.
	serviceManager := service.NewManager()

	if c.packet != nil {
		gw := gateway.New(gatewayConfig(cfg), c.packet, c.messages)
		if err := gw.Listen(); err != nil {
			log.Fatal().Err(err).Msg("error starting gateway")
		}
		serviceManager.Register(gw)
	}

	serviceManager.Run(ctx)

	httpServer, err := runHTTPServer(cfg, c.handlers(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("error running HTTP server")
	}

	if cfg.WatchConfig {
		if cfgMeta.FileNotFound {
			log.Warn().Msg("watch_config enabled without config file, nothing to watch")
		} else if err := config.Watch(configFile, func() { reloadTokens(c.store) }); err != nil {
			log.Fatal().Err(err).Msg("error watching config file")
		}
	}

	logStartWarnings(cfg, cfgMeta, c.store)

	go func() {
		// A failed service leaves the process without its verification surface.
		if err := serviceManager.Wait(); err != nil {
			log.Fatal().Err(err).Msg("service stopped with error")
		}
	}()

	handleSignals(cfg, c.store, httpServer, serviceManager, serviceCancel)
}

func reloadTokens(store *tokenstore.Store) {
	before := store.Len()
	if err := store.Reload(); err != nil {
		log.Error().Err(err).Msg("error reloading allowed tokens")
		return
	}
	log.Info().Int("num_tokens", store.Len()).Int("previous_num_tokens", before).Msg("allowed tokens reloaded")
}

func handleSignals(
	cfg config.Config, store *tokenstore.Store, httpServer *http.Server,
	serviceManager *service.Manager, serviceCancel context.CancelFunc,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, os.Interrupt, syscall.SIGTERM)
	for {
		sig := <-sigCh
		log.Info().Msgf("signal received: %v", sig)
		switch sig {
		case syscall.SIGHUP:
			// Only allowed tokens are reloaded, other changes need a restart.
			log.Info().Msg("reloading allowed tokens")
			reloadTokens(store)
		case syscall.SIGINT, os.Interrupt, syscall.SIGTERM:
			log.Info().Msg("shutting down ...")
			pidFile := cfg.PidFile
			shutdownTimeout := cfg.Shutdown.Timeout
			go time.AfterFunc(shutdownTimeout.ToDuration(), func() {
				_ = tools.RemovePidFile(pidFile)
				log.Fatal().Msg("shutdown timeout reached")
			})

			shutdownHTTPServer(context.Background(), httpServer) // We have a separate timeout goroutine.

			serviceCancel()
			_ = serviceManager.Wait()

			_ = tools.RemovePidFile(pidFile)
			os.Exit(0)
		}
	}
}
