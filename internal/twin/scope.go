package twin

// Scope partitions the key space of a twin. Scopes never overlap.
type Scope string

// Scopes known to the remote telemetry service.
const (
	ScopeClient          Scope = "CLIENT_SCOPE"
	ScopeServer          Scope = "SERVER_SCOPE"
	ScopeShared          Scope = "SHARED_SCOPE"
	ScopeLatestTelemetry Scope = "LATEST_TELEMETRY"
)

// Well-known server-scope attributes maintained by the remote platform.
const (
	AttrActive            = "active"
	AttrInactivityTimeout = "inactivityTimeout"
)

// AllScopes returns every valid scope in a stable order.
func AllScopes() []Scope {
	return []Scope{ScopeClient, ScopeServer, ScopeShared, ScopeLatestTelemetry}
}

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeClient, ScopeServer, ScopeShared, ScopeLatestTelemetry:
		return true
	}
	return false
}

// ParseScope returns the scope spelled by name.
func ParseScope(name string) (Scope, bool) {
	s := Scope(name)
	return s, s.Valid()
}

// IsAttributeScope reports whether s holds attributes rather than telemetry.
func (s Scope) IsAttributeScope() bool {
	return s == ScopeClient || s == ScopeServer || s == ScopeShared
}
