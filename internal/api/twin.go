package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-twin/internal/session"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// TwinResponse is the body of GET /twin.
type TwinResponse struct {
	DeviceID string     `json:"device_id"`
	Active   bool       `json:"active"`
	Scopes   twin.State `json:"scopes"`
}

// ScopeResponse is the body of GET /twin/{scope}.
type ScopeResponse struct {
	Scope      twin.Scope            `json:"scope"`
	Attributes map[string]twin.Value `json:"attributes"`
}

// AttributeResponse is the body of GET /twin/{scope}/{key}.
type AttributeResponse struct {
	Scope twin.Scope `json:"scope"`
	Key   string     `json:"key"`
	Value twin.Value `json:"value"`
}

// DiffResponse is the body of POST /twin/diff and /twin/push.
type DiffResponse struct {
	IgnoreTwinNull bool       `json:"ignore_twin_null"`
	Diff           twin.State `json:"diff"`
}

func (s *Server) handleGetTwin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TwinResponse{
		DeviceID: s.session.DeviceID().String(),
		Active:   s.session.Active(),
		Scopes:   s.session.Twin().GetAll(),
	})
}

func (s *Server) handleGetScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	values, _ := s.session.Twin().Get(scope)
	if values == nil {
		values = map[string]twin.Value{}
	}
	writeJSON(w, http.StatusOK, ScopeResponse{Scope: scope, Attributes: values})
}

func (s *Server) handleGetAttribute(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeParam(w, r)
	if !ok {
		return
	}
	key := chi.URLParam(r, "key")
	value, found := s.session.Twin().GetValue(scope, key)
	if !found {
		writeNotFound(w, "attribute not found")
		return
	}
	writeJSON(w, http.StatusOK, AttributeResponse{Scope: scope, Key: key, Value: value})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	candidate, ignore, ok := s.readCandidate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{
		IgnoreTwinNull: ignore,
		Diff:           s.session.Diff(candidate, ignore),
	})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	candidate, ignore, ok := s.readCandidate(w, r)
	if !ok {
		return
	}

	diff, err := s.session.Push(r.Context(), candidate, ignore)
	switch {
	case errors.Is(err, session.ErrNoPublisher):
		writeUnavailable(w, "no publisher configured")
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{IgnoreTwinNull: ignore, Diff: diff})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, _ *http.Request) {
	subs := s.session.Subscriptions()
	out := make(map[string]twin.Scope, len(subs))
	for id, scope := range subs {
		out[strconv.FormatInt(int64(id), 10)] = scope
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": out})
}

// readCandidate decodes a body of the form {"SCOPE": {"key": value}} and the
// ignore_twin_null query parameter.
func (s *Server) readCandidate(w http.ResponseWriter, r *http.Request) (twin.State, bool, bool) {
	ignore := s.ignoreTwinNull
	if raw := r.URL.Query().Get("ignore_twin_null"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "ignore_twin_null must be a boolean")
			return nil, false, false
		}
		ignore = parsed
	}

	var candidate twin.State
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return nil, false, false
		}
		writeBadRequest(w, "body must be a JSON object of scope to attribute values")
		return nil, false, false
	}
	for scope := range candidate {
		if !scope.Valid() {
			writeBadRequest(w, "unknown scope "+strconv.Quote(string(scope)))
			return nil, false, false
		}
	}
	return candidate, ignore, true
}

func scopeParam(w http.ResponseWriter, r *http.Request) (twin.Scope, bool) {
	scope, ok := twin.ParseScope(chi.URLParam(r, "scope"))
	if !ok {
		writeBadRequest(w, "unknown scope")
	}
	return scope, ok
}
