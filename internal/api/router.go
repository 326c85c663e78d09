package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/twin", func(r chi.Router) {
			r.Get("/", s.handleGetTwin)
			r.Post("/diff", s.handleDiff)
			r.Post("/push", s.handlePush)
			r.Get("/{scope}", s.handleGetScope)
			r.Get("/{scope}/{key}", s.handleGetAttribute)
		})

		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Get("/history/{scope}/{key}", s.handleGetHistory)
		r.Get("/averages/{key}", s.handleGetAverage)
		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// wsPath is the WebSocket route under /api/v1, "/ws" unless configured.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"device_id": s.session.DeviceID(),
	})
}
