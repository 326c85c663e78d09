package twin

import "strings"

const (
	historyKeyPrefix = "attrscope__"
	historyNameSep   = "__name__"
)

// HistoryKey returns the telemetry key under which changes to attribute name
// in scope are recorded, e.g. "attrscope__SERVER_SCOPE__name__active".
//
// Such keys describe another attribute's history. They are never stored in
// a twin.
func HistoryKey(scope Scope, name string) string {
	return historyKeyPrefix + string(scope) + historyNameSep + name
}

// IsHistoryKey reports whether key uses the reserved history pattern.
func IsHistoryKey(key string) bool {
	return strings.HasPrefix(key, historyKeyPrefix)
}

// ParseHistoryKey splits a history key into its scope and attribute name.
func ParseHistoryKey(key string) (Scope, string, bool) {
	rest, ok := strings.CutPrefix(key, historyKeyPrefix)
	if !ok {
		return "", "", false
	}
	scope, name, ok := strings.Cut(rest, historyNameSep)
	if !ok || !Scope(scope).Valid() {
		return "", "", false
	}
	return Scope(scope), name, true
}
