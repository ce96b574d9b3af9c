// Package httpapi adapts the Coordinator's operations onto the seven HTTP
// endpoints in spec.md §6, grounded on orchestration/task_api.go's
// handler/response-type shape and registration style.
package httpapi

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ridetrace/itinerary-coordinator/core"
	"github.com/ridetrace/itinerary-coordinator/internal/coordinator"
)

// ViewerHeader is the stand-in for this service's authentication layer
// (spec.md §1 non-goal: "user authentication mechanics"). A real deployment
// terminates auth upstream and forwards the resolved caller identity in this
// header; the HTTP Surface only ever reads it, never authenticates it.
const ViewerHeader = "X-Owner-Id"

// Server is the HTTP Surface (spec.md §4.5): thin, stateless, and backed
// entirely by one Coordinator.
type Server struct {
	coordinator *coordinator.Coordinator
	logger      core.Logger
	cors        CORSConfig
}

// ServerConfig controls the listening http.Server (spec.md §6
// "Configuration (deployment)"), mirrors core/tool.go's HTTPConfig fields.
type ServerConfig struct {
	Addr              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	CORS              CORSConfig
}

// DefaultServerConfig returns conservative HTTP timeouts, matching
// core/tool.go's defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:              ":8080",
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
		CORS:              DefaultCORSConfig(),
	}
}

// NewServer builds a Server. Call Handler to obtain the wrapped
// http.Handler, or Listen to obtain a configured *http.Server.
func NewServer(c *coordinator.Coordinator, logger core.Logger, cors CORSConfig) *Server {
	return &Server{coordinator: c, logger: logger, cors: cors}
}

// Handler returns the fully wired http.Handler: route registration, OTel
// HTTP instrumentation (grounded on the teacher's telemetry/http.go
// TracingMiddlewareWithConfig, which wraps the mux in otelhttp.NewHandler so
// every request gets a span under whatever TracerProvider
// internal/telemetry.Provider installed — a no-op tracer when telemetry is
// disabled), plus the logging/CORS middleware chain (core/middleware.go,
// core/cors.go order: CORS outermost, so preflight requests never reach the
// logger).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	traced := otelhttp.NewHandler(mux, "itinerary-coordinator", otelhttp.WithSpanNameFormatter(
		func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		},
	))
	return corsMiddleware(s.cors)(loggingMiddleware(s.logger)(traced))
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/notes/{noteId}/itineraries", s.handleGenerate)
	mux.HandleFunc("GET /api/notes/{noteId}/itineraries", s.handleListCompleted)
	mux.HandleFunc("GET /api/itineraries/{itineraryId}/status", s.handleStatus)
	mux.HandleFunc("POST /api/itineraries/{itineraryId}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/itineraries/{itineraryId}/download", s.handleDownload)
	mux.HandleFunc("GET /api/itineraries/{itineraryId}/mapy", s.handleMapy)
	mux.HandleFunc("GET /api/itineraries/{itineraryId}/google", s.handleGoogle)
}

// Listen builds an *http.Server from cfg wrapping s.Handler(); it does not
// start serving. The caller runs ListenAndServe and is responsible for
// graceful Shutdown.
func (s *Server) Listen(cfg ServerConfig) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

func viewerOf(r *http.Request) string {
	return r.Header.Get(ViewerHeader)
}
