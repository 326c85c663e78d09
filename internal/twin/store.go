package twin

import (
	"sync"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the twin of one device.
//
// Entries are only ever added or overwritten. All public methods are
// thread-safe; reads return copies the caller may modify freely.
type Store struct {
	deviceID uuid.UUID
	mu       sync.RWMutex // Protects state
	state    State
	logger   Logger
}

// NewStore creates an empty twin for deviceID.
func NewStore(deviceID uuid.UUID) *Store {
	return &Store{
		deviceID: deviceID,
		state:    make(State),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// DeviceID returns the identity of the device this twin mirrors.
func (s *Store) DeviceID() uuid.UUID {
	return s.deviceID
}

// GetAll returns a snapshot of the whole twin.
func (s *Store) GetAll() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Get returns the values held in scope. The second result is false when the
// scope has never been written.
func (s *Store) Get(scope Scope) (map[string]Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.state[scope]
	if !ok {
		return nil, false
	}
	return cloneValues(values), true
}

// GetValue returns a single value. The second result is false when the scope
// or key is unknown.
func (s *Store) GetValue(scope Scope, key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.state[scope][key]
	return v, ok
}

// Update inserts or overwrites one entry.
func (s *Store) Update(scope Scope, key string, value Value) {
	if !s.validScope(scope, "update") || !s.acceptKey(scope, key) {
		return
	}

	s.mu.Lock()
	s.put(scope, key, value)
	s.mu.Unlock()
}

// Apply stores the value carried by an attribute update.
func (s *Store) Apply(scope Scope, u AttributeUpdate) {
	s.Update(scope, u.Key, u.Value)
}

// ApplyUpdates stores a sequence of updates in order under one lock, so the
// last update for a key wins.
func (s *Store) ApplyUpdates(scope Scope, updates []AttributeUpdate) {
	if !s.validScope(scope, "apply") {
		return
	}
	accepted := make([]AttributeUpdate, 0, len(updates))
	for _, u := range updates {
		if s.acceptKey(scope, u.Key) {
			accepted = append(accepted, u)
		}
	}
	if len(accepted) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range accepted {
		s.put(scope, u.Key, u.Value)
	}
}

// UpdateScope applies every entry of values to scope as one batch.
func (s *Store) UpdateScope(scope Scope, values map[string]Value) {
	if values == nil {
		s.logger.Warn("ignoring twin update with nil values", "device_id", s.deviceID, "scope", scope)
		return
	}
	if !s.validScope(scope, "update") {
		return
	}
	accepted := s.filter(scope, values)
	if len(accepted) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range accepted {
		s.put(scope, key, v)
	}
}

// UpdateAll applies a full state as one batch.
func (s *Store) UpdateAll(state State) {
	if state == nil {
		s.logger.Warn("ignoring twin update with nil state", "device_id", s.deviceID)
		return
	}

	batch := make(State, len(state))
	for scope, values := range state {
		if values == nil {
			s.logger.Warn("ignoring twin update with nil values", "device_id", s.deviceID, "scope", scope)
			continue
		}
		if !s.validScope(scope, "update") {
			continue
		}
		if accepted := s.filter(scope, values); len(accepted) > 0 {
			batch[scope] = accepted
		}
	}
	if len(batch) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for scope, values := range batch {
		for key, v := range values {
			s.put(scope, key, v)
		}
	}
}

// put stores one entry. Caller must hold s.mu for writing.
func (s *Store) put(scope Scope, key string, value Value) {
	values, ok := s.state[scope]
	if !ok {
		values = make(map[string]Value)
		s.state[scope] = values
	}
	values[key] = value
}

func (s *Store) filter(scope Scope, values map[string]Value) map[string]Value {
	accepted := make(map[string]Value, len(values))
	for key, v := range values {
		if s.acceptKey(scope, key) {
			accepted[key] = v
		}
	}
	return accepted
}

func (s *Store) validScope(scope Scope, op string) bool {
	if scope.Valid() {
		return true
	}
	s.logger.Warn("ignoring twin "+op+" with invalid scope", "device_id", s.deviceID, "scope", scope)
	return false
}

func (s *Store) acceptKey(scope Scope, key string) bool {
	if key == "" {
		s.logger.Warn("ignoring twin update with empty key", "device_id", s.deviceID, "scope", scope)
		return false
	}
	if IsHistoryKey(key) {
		s.logger.Debug("skipping attribute history key", "device_id", s.deviceID, "scope", scope, "key", key)
		return false
	}
	return true
}
