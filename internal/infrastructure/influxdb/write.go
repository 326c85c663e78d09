package influxdb

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// Measurement is the measurement attribute updates are written to.
const Measurement = "attribute_history"

// Field names by value kind.
const (
	FieldNumber = "value"
	FieldBool   = "value_bool"
	FieldText   = "value_text"
)

// NewAttributePoint builds the point for one attribute value. It returns
// false for values that cannot be stored: null, NaN and infinities.
func NewAttributePoint(deviceID uuid.UUID, scope twin.Scope, key string, value twin.Value, ts time.Time) (*write.Point, bool) {
	var field string
	var v any

	switch value.Kind() {
	case twin.KindBool:
		b, _ := value.AsBool()
		field, v = FieldBool, b
	case twin.KindInt, twin.KindFloat:
		f, _ := value.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		field, v = FieldNumber, f
	case twin.KindString:
		s, _ := value.AsString()
		field, v = FieldText, s
	default:
		return nil, false
	}

	tags := map[string]string{
		"device_id": deviceID.String(),
		"scope":     string(scope),
		"attribute": twin.HistoryKey(scope, key),
	}
	return write.NewPoint(Measurement, tags, map[string]any{field: v}, ts), true
}

// WriteAttribute queues one attribute value. Values NewAttributePoint
// rejects are dropped silently.
func (c *Client) WriteAttribute(deviceID uuid.UUID, scope twin.Scope, key string, value twin.Value, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	point, ok := NewAttributePoint(deviceID, scope, key, value, ts)
	if !ok {
		return nil
	}
	c.writer.WritePoint(point)
	return nil
}

// RecordUpdate queues u at its own timestamp.
func (c *Client) RecordUpdate(_ context.Context, deviceID uuid.UUID, scope twin.Scope, u twin.AttributeUpdate) error {
	return c.WriteAttribute(deviceID, scope, u.Key, u.Value, u.Time())
}
