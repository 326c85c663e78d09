package twin

// State maps each scope to its attribute values.
type State map[Scope]map[string]Value

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for scope, values := range s {
		out[scope] = cloneValues(values)
	}
	return out
}

// IsEmpty reports whether no scope in s holds an entry.
func (s State) IsEmpty() bool {
	for _, values := range s {
		if len(values) > 0 {
			return false
		}
	}
	return true
}

// Len returns the number of entries across all scopes.
func (s State) Len() int {
	n := 0
	for _, values := range s {
		n += len(values)
	}
	return n
}

func cloneValues(values map[string]Value) map[string]Value {
	out := make(map[string]Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
