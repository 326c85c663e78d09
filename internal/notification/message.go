package notification

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// Message is a fully decoded notification.
type Message struct {
	// SubscriptionID echoes the cmdId of the subscription command. It is only
	// meaningful when HasSubscriptionID is true.
	SubscriptionID    int32
	HasSubscriptionID bool

	ErrorCode int
	ErrorMsg  string

	Updates []twin.AttributeUpdate

	// LatestValues maps each key to the timestamp of its newest value.
	LatestValues map[string]int64
}

// Failed reports whether the service flagged the notification as an error.
func (m *Message) Failed() bool {
	return m.ErrorCode != 0
}

// Decode decodes the whole envelope. The "data" field is required; the
// subscription id is optional but must be valid when present. A non-zero
// errorCode is reported on the Message, not as an error.
func (d *Decoder) Decode(payload []byte) (*Message, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}

	msg := &Message{LatestValues: make(map[string]int64, len(env.LatestValues))}

	if env.SubscriptionID != nil && string(env.SubscriptionID) != "null" {
		id, err := parseSubscriptionID(env.SubscriptionID)
		if err != nil {
			return nil, err
		}
		msg.SubscriptionID = id
		msg.HasSubscriptionID = true
	}

	if msg.ErrorCode, err = parseErrorCode(env.ErrorCode); err != nil {
		return nil, fmt.Errorf("%w: errorCode: %w", ErrInvalidField, err)
	}
	if env.ErrorMsg != nil {
		var text *string
		if err := json.Unmarshal(env.ErrorMsg, &text); err != nil {
			return nil, fmt.Errorf("%w: errorMsg: %w", ErrInvalidField, err)
		}
		if text != nil {
			msg.ErrorMsg = *text
		}
	}

	if msg.Updates, err = d.decodeData(env.Data); err != nil {
		return nil, err
	}

	for key, raw := range env.LatestValues {
		ts, err := parseTimestamp(raw)
		if err != nil {
			d.logger.Warn("skipping latest value: bad timestamp", "key", key, "timestamp", string(raw), "error", err)
			continue
		}
		msg.LatestValues[key] = ts
	}

	return msg, nil
}
