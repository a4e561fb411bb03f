package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{device}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)

				r.Route("/properties/{property}", func(r chi.Router) {
					r.Get("/", s.handleGetProperty)
					r.Put("/", s.handleSetProperty)
					r.Get("/history", s.handleGetHistory)
				})
			})
		})
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth reports "ok" while the INDI connection is up and
// "degraded" otherwise. It always answers 200 so probes can read the body.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	indiConnected := s.indi != nil && s.indi.IsConnected()
	if !indiConnected {
		status = "degraded"
	}

	resp := map[string]any{
		"status":         status,
		"version":        s.version,
		"indi_connected": indiConnected,
		"devices":        s.registry.GetDeviceCount(),
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	writeJSON(w, http.StatusOK, resp)
}
