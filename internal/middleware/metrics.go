package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"clypse/internal/metrics"
)

// unmatchedRoute labels requests that no route handled.
const unmatchedRoute = "unmatched"

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that should not be recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus metrics. It must be
// installed with Router.Use so the matched route is known.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			path := routeLabel(r)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
		})
	}
}

// routeLabel prefers the matched route template, which keeps uuids and file
// names out of the label set.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return normalizePath(r.URL.Path)
}

var topLevelRoutes = map[string]bool{
	"ws":      true,
	"version": true,
	"metrics": true,
	"health":  true,
	"healthz": true,
	"livez":   true,
	"readyz":  true,
}

// normalizePath collapses dynamic segments of known routes for requests that
// arrive without a matched route.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && (parts[0] == "s" || parts[0] == "share"):
		return "/" + parts[0] + "/{uuid}"
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "videos":
		return "/api/videos/{uuid}"
	case len(parts) == 3 && parts[0] == "videos" && parts[1] == "thumbnails":
		return "/videos/thumbnails/{file}"
	case len(parts) == 1 && topLevelRoutes[parts[0]]:
		return "/" + parts[0]
	case len(parts) == 2 && parts[0] == "api":
		return path
	}
	return unmatchedRoute
}
