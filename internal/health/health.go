package health

import (
	"net/http"

	"github.com/tidwall/sjson"
)

// Config of health check handler.
type Config struct {
	// Checks run on every request. A failing check turns the response into 503.
	Checks map[string]func() error
}

// Handler handles health endpoint.
type Handler struct {
	config Config
}

// NewHandler creates new Handler.
func NewHandler(c Config) *Handler {
	return &Handler{config: c}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := `{}`
	status := http.StatusOK
	for name, check := range h.config.Checks {
		if err := check(); err != nil {
			status = http.StatusServiceUnavailable
			body, _ = sjson.Set(body, "errors."+name, err.Error())
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
