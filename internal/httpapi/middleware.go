package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/ridetrace/itinerary-coordinator/core"
)

// CORSConfig controls cross-origin access to the HTTP Surface, adapted from
// core/config.go's CORSConfig (same field shape, trimmed to what this
// service needs).
type CORSConfig struct {
	Enabled        bool
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// DefaultCORSConfig disables CORS; operators opt in with explicit origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:        false,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}
}

// corsMiddleware is adapted from core/cors.go's CORSMiddleware: same
// preflight short-circuit and header set, trimmed of wildcard-subdomain/port
// matching this service's deployment topology doesn't need.
func corsMiddleware(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, config.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// statusCapturingWriter wraps http.ResponseWriter to record the status code
// for logging, adapted from core/middleware.go's responseWriter.
type statusCapturingWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (w *statusCapturingWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusCapturingWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.statusCode = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// loggingMiddleware logs every request's outcome, adapted from
// core/middleware.go's LoggingMiddleware: 5xx responses log at Error, 4xx
// at Warn, everything else at Info.
func loggingMiddleware(logger core.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusCapturingWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			duration := time.Since(start)

			if logger == nil {
				return
			}
			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
			}
			switch {
			case wrapped.statusCode >= 500:
				logger.ErrorWithContext(r.Context(), "http request error", fields)
			case wrapped.statusCode >= 400:
				logger.WarnWithContext(r.Context(), "http request client error", fields)
			default:
				logger.InfoWithContext(r.Context(), "http request", fields)
			}
		})
	}
}
