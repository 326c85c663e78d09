package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/notification"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// Broker is the part of Client the relay uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Target receives what the relay reads from the broker. *session.Session
// implements it.
type Target interface {
	DeviceID() uuid.UUID
	HandleNotification(ctx context.Context, payload []byte) (int, error)
	Push(ctx context.Context, candidate twin.State, ignoreTwinNull bool) (twin.State, error)
}

// RelayLogger is the logging surface of the relay.
type RelayLogger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopRelayLogger struct{}

func (noopRelayLogger) Debug(string, ...any) {}
func (noopRelayLogger) Warn(string, ...any)  {}

// Relay carries a device twin over MQTT. Outbound it publishes attribute
// diffs and subscription commands; inbound it feeds push notifications and
// desired-state candidates to a Target.
type Relay struct {
	broker   Broker
	deviceID uuid.UUID
	qos      byte
	logger   RelayLogger

	mu             sync.RWMutex
	ctx            context.Context
	target         Target
	ignoreTwinNull bool
}

// NewRelay returns a relay for deviceID publishing with the given QoS.
func NewRelay(broker Broker, deviceID uuid.UUID, qos byte) *Relay {
	return &Relay{
		broker:   broker,
		deviceID: deviceID,
		qos:      qos,
		logger:   noopRelayLogger{},
		ctx:      context.Background(),
	}
}

// SetLogger sets the relay logger. nil restores the no-op logger.
func (r *Relay) SetLogger(logger RelayLogger) {
	if logger == nil {
		logger = noopRelayLogger{}
	}
	r.logger = logger
}

// PublishAttributes publishes values as one JSON object on the scope's
// attributes topic.
func (r *Relay) PublishAttributes(_ context.Context, deviceID uuid.UUID, scope twin.Scope, values map[string]twin.Value) error {
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding %s attributes: %w", scope, err)
	}
	return r.broker.Publish(Topics{}.Attributes(deviceID, scope), payload, r.qos, false)
}

// SendSubscription publishes req, retained, on the subscribe topic of its
// scope. All commands in req must target the same scope; a later request for
// that scope replaces the retained one.
func (r *Relay) SendSubscription(_ context.Context, deviceID uuid.UUID, req notification.SubscribeRequest) error {
	scope, err := requestScope(req)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding subscription: %w", err)
	}
	return r.broker.Publish(Topics{}.Subscribe(deviceID, scope), payload, r.qos, true)
}

// requestScope returns the single scope every command of req targets.
func requestScope(req notification.SubscribeRequest) (twin.Scope, error) {
	cmds := req.Commands()
	if len(cmds) == 0 {
		return "", fmt.Errorf("%w: subscription has no commands", ErrInvalidPayload)
	}
	scope := cmds[0].Scope
	for _, cmd := range cmds[1:] {
		if cmd.Scope != scope {
			return "", fmt.Errorf("%w: subscription mixes scopes %s and %s", ErrInvalidPayload, scope, cmd.Scope)
		}
	}
	if !scope.Valid() {
		return "", fmt.Errorf("%w: scope %q", ErrInvalidPayload, scope)
	}
	return scope, nil
}

// Start subscribes to the device's notification and desired-state topics
// and routes their messages to target until ctx is cancelled. Desired
// values are diffed with the given mode before being pushed.
func (r *Relay) Start(ctx context.Context, target Target, ignoreTwinNull bool) error {
	r.mu.Lock()
	r.ctx = ctx
	r.target = target
	r.ignoreTwinNull = ignoreTwinNull
	r.mu.Unlock()

	topics := Topics{}
	if err := r.broker.Subscribe(topics.Notifications(r.deviceID), r.qos, r.handleNotification); err != nil {
		return fmt.Errorf("subscribing to notifications: %w", err)
	}
	if err := r.broker.Subscribe(topics.AllDesired(r.deviceID), r.qos, r.handleDesired); err != nil {
		return fmt.Errorf("subscribing to desired state: %w", err)
	}
	return nil
}

func (r *Relay) state() (context.Context, Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx, r.target, r.ignoreTwinNull
}

func (r *Relay) handleNotification(topic string, payload []byte) error {
	ctx, target, _ := r.state()
	if target == nil || ctx.Err() != nil {
		return nil
	}

	n, err := target.HandleNotification(ctx, payload)
	if err != nil {
		return err
	}
	r.logger.Debug("notification applied", "topic", topic, "updates", n)
	return nil
}

func (r *Relay) handleDesired(topic string, payload []byte) error {
	ctx, target, ignore := r.state()
	if target == nil || ctx.Err() != nil {
		return nil
	}

	deviceID, scope, ok := Topics{}.ParseDesired(topic)
	if !ok || deviceID != r.deviceID {
		r.logger.Warn("ignoring desired state on unexpected topic", "topic", topic)
		return nil
	}

	values, err := decodeDesired(payload)
	if err != nil {
		return err
	}

	pushed, err := target.Push(ctx, twin.State{scope: values}, ignore)
	if err != nil {
		return fmt.Errorf("pushing %s diff: %w", scope, err)
	}
	r.logger.Debug("desired state processed", "scope", scope, "candidates", len(values), "changed", pushed.Len())
	return nil
}

// decodeDesired parses a JSON object of attribute name to scalar value.
func decodeDesired(payload []byte) (map[string]twin.Value, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: desired state must be a JSON object", ErrInvalidPayload)
	}
	var values map[string]twin.Value
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return values, nil
}
