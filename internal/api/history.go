package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-twin/internal/history"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// HistoryResponse is the body of GET /history/{scope}/{key}.
type HistoryResponse struct {
	Scope   twin.Scope      `json:"scope"`
	Key     string          `json:"key"`
	Count   int             `json:"count"`
	Entries []history.Entry `json:"entries"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "attribute history is disabled")
		return
	}

	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.GetHistory(r.Context(), s.session.DeviceID(), scope, key, limit)
	if err != nil {
		s.logger.Error("reading attribute history failed", "scope", scope, "key", key, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Scope:   scope,
		Key:     key,
		Count:   len(entries),
		Entries: entries,
	})
}

// parseHistoryLimit accepts an empty value (repository default) or a
// positive integer; the repository applies its own maximum.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return limit, nil
}
