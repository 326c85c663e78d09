package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AverageResponse is the body of GET /averages/{key}.
type AverageResponse struct {
	Key     string  `json:"key"`
	Average float64 `json:"average"`
}

func (s *Server) handleGetAverage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	avg, ok := s.session.Average(key)
	if !ok {
		writeNotFound(w, "no moving average for "+key)
		return
	}
	writeJSON(w, http.StatusOK, AverageResponse{Key: key, Average: avg})
}
