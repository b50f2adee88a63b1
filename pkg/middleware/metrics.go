package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/srinipal/filesearch/pkg/logger"
	"github.com/srinipal/filesearch/pkg/metrics"
)

// Router resolves the registered pattern for a request. *http.ServeMux
// implements it.
type Router interface {
	Handler(r *http.Request) (h http.Handler, pattern string)
}

// Metrics records request count, latency and in-flight requests, labelled by
// the route pattern that routes resolves, and logs each request at debug
// level. Requests no route matches share the "unmatched" label.
func Metrics(m *metrics.Metrics, routes Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			route := routeLabel(routes, r)
			status := rec.code()
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			logger.FromContext(r.Context()).Debug("request served",
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", rec.bytes,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

func routeLabel(routes Router, r *http.Request) string {
	_, pattern := routes.Handler(r)
	if pattern == "" {
		return "unmatched"
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}
