// Package api serves handshake verification over HTTP for host adapters
// which receive the forwarding handshake as a structured login event and
// need a verdict before letting the login continue.
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/messages"
	"github.com/bungeeguard/bungeeguard/internal/source"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultMaxBodySize = 64 * 1024

var (
	errEmptyRequest     = errors.New("empty request")
	errInvalidJSON      = errors.New("invalid JSON")
	errMissingHandshake = errors.New("handshake string field required")
)

// Config configures Handler.
type Config struct {
	// MaxBodySize limits request body size. Zero means 64KiB.
	MaxBodySize int64
}

// Handler verifies a handshake posted either as a raw body or as JSON
// object {"handshake": "..."}. The verdict is always answered with 200,
// malformed requests get 400.
type Handler struct {
	source   source.HandshakeSource
	messages *messages.Messages
	config   Config
}

// NewHandler creates new Handler.
func NewHandler(src source.HandshakeSource, msgs *messages.Messages, c Config) *Handler {
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return &Handler{
		source:   src,
		messages: msgs,
		config:   c,
	}
}

func (s *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodySize))
	if err != nil {
		s.handleReadDataErr(w, err)
		return
	}
	raw, err := requestHandshake(r.Header.Get("Content-Type"), data)
	if err != nil {
		log.Debug().Err(err).Msg("bad verify request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.verify(raw)))
}

func (s *Handler) handleReadDataErr(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	log.Error().Err(err).Msg("error reading verify request body")
	w.WriteHeader(http.StatusBadRequest)
}

func requestHandshake(contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyRequest
	}
	if !strings.HasPrefix(contentType, "application/json") {
		return string(data), nil
	}
	if !gjson.ValidBytes(data) {
		return "", errInvalidJSON
	}
	res := gjson.GetBytes(data, "handshake")
	if res.Type != gjson.String {
		return "", errMissingHandshake
	}
	return res.Str, nil
}

// verify returns the JSON verdict for raw. Rejections carry the reason and
// the client facing message, never the failure context.
func (s *Handler) verify(raw string) string {
	v, err := s.source.Verify(raw)
	if err != nil {
		reason := handshake.ReasonInvalidHandshake
		if f, ok := handshake.AsFailure(err); ok {
			reason = f.Reason
		}
		out, _ := sjson.Set(`{"ok":false}`, "reason", reason.String())
		out, _ = sjson.Set(out, "message", s.messages.Text(reason))
		return out
	}
	out, _ := sjson.Set(`{"ok":true}`, "handshake", v.Encode())
	out, _ = sjson.Set(out, "id", v.ID.String())
	out, _ = sjson.Set(out, "server_hostname", v.ServerHostname)
	out, _ = sjson.Set(out, "client_address", v.ClientAddressHostname)
	out, _ = sjson.SetRaw(out, "properties", v.PropertiesJSON())
	return out
}
