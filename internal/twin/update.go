package twin

import (
	"fmt"
	"time"
)

// AttributeUpdate records one observed attribute change.
type AttributeUpdate struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"ts"` // epoch milliseconds
	Value     Value  `json:"value"`
}

// NewAttributeUpdate builds an update stamped at t.
func NewAttributeUpdate(key string, t time.Time, value Value) AttributeUpdate {
	return AttributeUpdate{Key: key, Timestamp: t.UnixMilli(), Value: value}
}

// Time returns the update timestamp.
func (u AttributeUpdate) Time() time.Time {
	return time.UnixMilli(u.Timestamp)
}

// Equal compares key, timestamp and value. Values use native equality, not
// their text.
func (u AttributeUpdate) Equal(o AttributeUpdate) bool {
	return u.Key == o.Key && u.Timestamp == o.Timestamp && u.Value.Equal(o.Value)
}

func (u AttributeUpdate) String() string {
	return fmt.Sprintf("AttributeUpdate{key=%s, ts=%d, value=%s}", u.Key, u.Timestamp, u.Value)
}
