package app

import (
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logStartWarnings(cfg config.Config, cfgMeta config.Meta, store *tokenstore.Store) {
	if store.Len() == 0 {
		switch store.Policy() {
		case tokenstore.PolicyTrustFirstUse:
			log.Warn().Msg("no allowed tokens configured, the first token presented will be trusted")
		default:
			log.Warn().Msg("no allowed tokens configured, every forwarded login will be denied")
		}
	}
	if cfg.Log.TokenRedaction == "none" {
		log.Warn().Msg("token redaction disabled, rejected tokens are logged in full")
	}
	if cfg.VerifyAPI.Enabled && cfg.HTTP.Address == "" {
		log.Warn().Msg("verify API listens on all interfaces, make sure it is not reachable by clients")
	}

	for _, key := range cfgMeta.UnknownKeys {
		log.Warn().Str("key", key).Msg("unknown key in configuration file")
	}
	for _, key := range cfgMeta.UnknownEnvs {
		log.Warn().Str("var", key).Msg("unknown var in environment")
	}
}

type httpErrorLogWriter struct {
	zerolog.Logger
}

func (w *httpErrorLogWriter) Write(data []byte) (int, error) {
	w.Logger.Warn().Msg(strings.TrimSpace(string(data)))
	return len(data), nil
}
