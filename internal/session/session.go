// Package session owns the twin of one device and moves data through it:
// notifications in, diffs out.
//
// A Session never holds the twin lock while talking to a collaborator. The
// store computes a diff, releases its lock, and only then is the diff handed
// to the Publisher.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/notification"
	"github.com/nerrad567/gray-logic-twin/internal/stats"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// ChannelAttributeUpdated is the hub channel that receives applied updates.
const ChannelAttributeUpdated = "attribute.updated"

// Logger defines the logging interface used by the Session.
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

// Publisher sends the changed attributes of one scope upstream.
type Publisher interface {
	PublishAttributes(ctx context.Context, deviceID uuid.UUID, scope twin.Scope, values map[string]twin.Value) error
}

// SubscriptionSender delivers subscription commands to the telemetry service.
type SubscriptionSender interface {
	SendSubscription(ctx context.Context, deviceID uuid.UUID, req notification.SubscribeRequest) error
}

// Recorder keeps a history of applied updates.
type Recorder interface {
	RecordUpdate(ctx context.Context, deviceID uuid.UUID, scope twin.Scope, u twin.AttributeUpdate) error
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	Broadcast(channel string, payload any)
}

// Deps holds the collaborators of a Session. Only DeviceID is required.
type Deps struct {
	DeviceID   uuid.UUID
	Publisher  Publisher
	Subscriber SubscriptionSender
	Recorders  []Recorder
	Hub        WSHub
	Logger     Logger

	// AverageWindow enables a moving average per numeric LATEST_TELEMETRY
	// key. Zero disables it.
	AverageWindow     time.Duration
	AverageMinSamples int
}

// Session binds one device to its twin for the lifetime of the process.
//
// Thread Safety: all methods are safe for concurrent use.
type Session struct {
	store      *twin.Store
	decoder    *notification.Decoder
	publisher  Publisher
	subscriber SubscriptionSender
	recorders  []Recorder
	hub        WSHub
	logger     Logger

	subsMu sync.RWMutex
	subs   map[int32]twin.Scope // cmdId -> scope

	avgWindow     time.Duration
	avgMinSamples int
	avgMu         sync.Mutex
	averages      map[string]*stats.MovingAverage
	now           func() time.Time
}

// New creates a session for deps.DeviceID with an empty twin.
func New(deps Deps) (*Session, error) {
	if deps.DeviceID == uuid.Nil {
		return nil, ErrInvalidDevice
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	store := twin.NewStore(deps.DeviceID)
	store.SetLogger(logger)
	decoder := notification.NewDecoder()
	decoder.SetLogger(logger)

	return &Session{
		store:      store,
		decoder:    decoder,
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		recorders:  deps.Recorders,
		hub:        deps.Hub,
		logger:     logger,
		subs:       make(map[int32]twin.Scope),

		avgWindow:     deps.AverageWindow,
		avgMinSamples: deps.AverageMinSamples,
		averages:      make(map[string]*stats.MovingAverage),
		now:           time.Now,
	}, nil
}

// DeviceID returns the device this session mirrors.
func (s *Session) DeviceID() uuid.UUID {
	return s.store.DeviceID()
}

// Twin returns the session's twin.
func (s *Session) Twin() *twin.Store {
	return s.store
}

// Subscribe registers a subscription for scope and sends the command when a
// SubscriptionSender is configured. It returns the command id that incoming
// notifications will carry.
func (s *Session) Subscribe(ctx context.Context, scope twin.Scope, keys []string) (int32, error) {
	if !scope.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	s.subsMu.Lock()
	cmdID := notification.NewCommandID()
	for _, taken := s.subs[cmdID]; taken; _, taken = s.subs[cmdID] {
		cmdID = notification.NewCommandID()
	}
	s.subs[cmdID] = scope
	s.subsMu.Unlock()

	req, err := notification.NewSubscribeRequest(s.DeviceID(), scope, keys, cmdID)
	if err != nil {
		s.forget(cmdID)
		return 0, err
	}

	if s.subscriber != nil {
		if err := s.subscriber.SendSubscription(ctx, s.DeviceID(), req); err != nil {
			s.forget(cmdID)
			return 0, fmt.Errorf("sending subscription: %w", err)
		}
	}

	s.logger.Info("subscribed to device updates", "device_id", s.DeviceID(), "scope", scope, "cmd_id", cmdID, "keys", len(keys))
	return cmdID, nil
}

func (s *Session) forget(cmdID int32) {
	s.subsMu.Lock()
	delete(s.subs, cmdID)
	s.subsMu.Unlock()
}

// Subscriptions returns a copy of the issued command ids and their scopes.
func (s *Session) Subscriptions() map[int32]twin.Scope {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	out := make(map[int32]twin.Scope, len(s.subs))
	for id, scope := range s.subs {
		out[id] = scope
	}
	return out
}

// HandleNotification decodes payload, resolves its scope from the
// subscription id, and applies the updates in timestamp order. It returns the
// number of updates applied.
func (s *Session) HandleNotification(ctx context.Context, payload []byte) (int, error) {
	msg, err := s.decoder.Decode(payload)
	if err != nil {
		return 0, err
	}
	if !msg.HasSubscriptionID {
		return 0, fmt.Errorf("%w: subscriptionId", notification.ErrMissingField)
	}

	s.subsMu.RLock()
	scope, ok := s.subs[msg.SubscriptionID]
	s.subsMu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSubscription, msg.SubscriptionID)
	}

	return s.apply(ctx, scope, msg), nil
}

// HandleScopedNotification applies payload to a scope known by the caller.
func (s *Session) HandleScopedNotification(ctx context.Context, scope twin.Scope, payload []byte) (int, error) {
	if !scope.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	msg, err := s.decoder.Decode(payload)
	if err != nil {
		return 0, err
	}
	return s.apply(ctx, scope, msg), nil
}

func (s *Session) apply(ctx context.Context, scope twin.Scope, msg *notification.Message) int {
	if msg.Failed() {
		s.logger.Warn("telemetry service reported an error",
			"device_id", s.DeviceID(), "scope", scope, "error_code", msg.ErrorCode, "error_msg", msg.ErrorMsg)
	}

	applied := make([]twin.AttributeUpdate, 0, len(msg.Updates))
	for _, u := range msg.Updates {
		if u.Key == "" || twin.IsHistoryKey(u.Key) {
			continue
		}
		applied = append(applied, u)
	}
	if len(applied) == 0 {
		return 0
	}
	s.store.ApplyUpdates(scope, applied)
	if scope == twin.ScopeLatestTelemetry {
		s.sample(applied)
	}

	for _, u := range applied {
		for _, r := range s.recorders {
			if err := r.RecordUpdate(ctx, s.DeviceID(), scope, u); err != nil {
				s.logger.Error("recording attribute update failed",
					"device_id", s.DeviceID(), "scope", scope, "key", u.Key, "error", err)
			}
		}
	}

	if s.hub != nil {
		s.hub.Broadcast(ChannelAttributeUpdated, map[string]any{
			"device_id": s.DeviceID().String(),
			"scope":     scope,
			"updates":   applied,
		})
	}

	s.logger.Debug("applied attribute updates", "device_id", s.DeviceID(), "scope", scope, "count", len(applied))
	return len(applied)
}

// sample feeds numeric telemetry into the per-key moving averages. Samples
// are timed at ingest.
func (s *Session) sample(updates []twin.AttributeUpdate) {
	if s.avgWindow <= 0 {
		return
	}
	now := s.now()

	s.avgMu.Lock()
	defer s.avgMu.Unlock()
	for _, u := range updates {
		f, ok := numeric(u.Value)
		if !ok {
			continue
		}
		avg, ok := s.averages[u.Key]
		if !ok {
			avg = stats.NewMovingAverage(s.avgWindow, s.avgMinSamples)
			s.averages[u.Key] = avg
		}
		avg.Add(f, now)
	}
}

// Average returns the moving average of a LATEST_TELEMETRY key. ok is false
// when averaging is disabled, the key never carried a number, or too few
// samples are inside the window.
func (s *Session) Average(key string) (float64, bool) {
	s.avgMu.Lock()
	avg, ok := s.averages[key]
	s.avgMu.Unlock()
	if !ok {
		return 0, false
	}
	return avg.Average(s.now())
}

// numeric reads numbers and numeric strings; telemetry often arrives as
// text.
func numeric(v twin.Value) (float64, bool) {
	if f, ok := v.AsFloat(); ok {
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	}
	str, ok := v.AsString()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Diff returns the per-scope diff of candidate against the twin.
func (s *Session) Diff(candidate twin.State, ignoreTwinNull bool) twin.State {
	return s.store.UpdateDiffAll(candidate, ignoreTwinNull)
}

// Push publishes the parts of candidate that differ from the twin. Scopes
// without changes are not published and are left out of the returned diff.
// Every changed scope is attempted; the first publish error is returned.
func (s *Session) Push(ctx context.Context, candidate twin.State, ignoreTwinNull bool) (twin.State, error) {
	diff := s.store.UpdateDiffAll(candidate, ignoreTwinNull)
	for scope, values := range diff {
		if len(values) == 0 {
			delete(diff, scope)
		}
	}
	if len(diff) == 0 {
		return diff, nil
	}
	if s.publisher == nil {
		return diff, ErrNoPublisher
	}

	var firstErr error
	for _, scope := range twin.AllScopes() {
		values, ok := diff[scope]
		if !ok {
			continue
		}
		if err := s.publisher.PublishAttributes(ctx, s.DeviceID(), scope, values); err != nil {
			s.logger.Error("publishing attribute diff failed", "device_id", s.DeviceID(), "scope", scope, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("publishing %s: %w", scope, err)
			}
			continue
		}
		s.logger.Info("published attribute diff", "device_id", s.DeviceID(), "scope", scope, "count", len(values))
	}
	return diff, firstErr
}

// Active reports the server-scope "active" attribute.
func (s *Session) Active() bool {
	v, ok := s.store.GetValue(twin.ScopeServer, twin.AttrActive)
	if !ok {
		return false
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	str, ok := v.AsString()
	return ok && str == "true"
}

// IsDecodeError reports whether err came from an uninterpretable payload.
func IsDecodeError(err error) bool {
	return errors.Is(err, notification.ErrDecode)
}
