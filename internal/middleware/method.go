package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Post restricts the verify endpoint to POST, handshakes are never passed
// in a URL.
func Post(h http.Handler) http.Handler {
	return Method(http.MethodPost, h)
}

// Method answers 405 with an Allow header to any request not using method.
func Method(method string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("method not allowed")
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed, use "+method, http.StatusMethodNotAllowed)
			return
		}
		h.ServeHTTP(w, r)
	})
}
