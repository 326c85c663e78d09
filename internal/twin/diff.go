package twin

// UpdateDiff returns the entries of candidate that differ from the twin's
// values in scope. Changed entries carry the candidate's value.
//
// When the scope has never been written, strict mode reports the whole
// candidate and ignore-twin-null mode reports nothing.
func (s *Store) UpdateDiff(scope Scope, candidate map[string]Value, ignoreTwinNull bool) map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return diffScope(s.state[scope], s.hasScope(scope), candidate, ignoreTwinNull)
}

// UpdateDiffAll diffs every scope present in candidate. Each candidate scope
// appears in the result, possibly with no entries; use State.IsEmpty to test
// for "nothing changed".
func (s *Store) UpdateDiffAll(candidate State, ignoreTwinNull bool) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(State, len(candidate))
	for scope, values := range candidate {
		out[scope] = diffScope(s.state[scope], s.hasScope(scope), values, ignoreTwinNull)
	}
	return out
}

// Differs reports whether key would appear in UpdateDiff for a candidate
// holding only that key.
func (s *Store) Differs(scope Scope, key string, value Value, ignoreTwinNull bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current, known := s.state[scope]
	if !known {
		return !ignoreTwinNull
	}
	t, present := current[key]
	return differs(t, present, value, ignoreTwinNull)
}

// hasScope reports whether scope has been written. Caller must hold s.mu.
func (s *Store) hasScope(scope Scope) bool {
	_, ok := s.state[scope]
	return ok
}

func diffScope(current map[string]Value, known bool, candidate map[string]Value, ignoreTwinNull bool) map[string]Value {
	out := make(map[string]Value)
	if !known {
		if !ignoreTwinNull {
			for k, v := range candidate {
				out[k] = v
			}
		}
		return out
	}
	for k, c := range candidate {
		t, present := current[k]
		if differs(t, present, c, ignoreTwinNull) {
			out[k] = c
		}
	}
	return out
}

// differs decides a single key. present is false when the key is absent from
// the twin scope.
func differs(t Value, present bool, c Value, ignoreTwinNull bool) bool {
	if ignoreTwinNull {
		if !present || t.IsNull() {
			return false
		}
		return !Same(t, c)
	}
	if !present {
		return true
	}
	return !Same(t, c)
}
