package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests with 429 once limiter is exhausted. A nil
// limiter disables the check.
func RateLimit(limiter *rate.Limiter, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil && !limiter.Allow() {
			log.Debug().Str("path", r.URL.Path).Msg("request rate limit reached")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		h.ServeHTTP(w, r)
	})
}
