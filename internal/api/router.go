package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/state", func(r chi.Router) {
			r.Get("/", s.handleGetState)
			r.Put("/", s.handleSetState)
		})

		r.Route("/signals", func(r chi.Router) {
			r.Get("/", s.handleListSignals)
			r.Get("/{name}", s.handleGetSignal)
		})

		r.Get("/transmissions", s.handleListTransmissions)

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := false
	if s.link != nil {
		connected = s.link.Stats().Connected
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"link_connected": connected,
	})
}
