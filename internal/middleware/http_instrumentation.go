package middleware

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal *prometheus.CounterVec
)

func init() {
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bungeeguard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Number of incoming HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	_ = prometheus.DefaultRegisterer.Register(httpRequestsTotal)
}

// HTTPServerInstrumentation is a middleware to instrument HTTP handlers.
func HTTPServerInstrumentation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusResponseWriter{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rw.Status())).Inc()
	})
}
