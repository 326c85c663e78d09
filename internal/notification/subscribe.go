package notification

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// EntityTypeDevice is the entity type of every subscription issued for a twin.
const EntityTypeDevice = "DEVICE"

// SubscriptionCommand asks the telemetry service to push changes of one
// entity. CmdID comes back as the subscriptionId of each notification.
type SubscriptionCommand struct {
	CmdID      int32      `json:"cmdId"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Scope      twin.Scope `json:"scope"`
	Keys       string     `json:"keys,omitempty"`
}

// SubscribeRequest is the command document sent to the telemetry service.
type SubscribeRequest struct {
	AttrSubCmds []SubscriptionCommand `json:"attrSubCmds"`
	TsSubCmds   []SubscriptionCommand `json:"tsSubCmds"`
	HistoryCmds []SubscriptionCommand `json:"historyCmds"`
}

// NewSubscribeRequest builds a request for one scope of deviceID.
// Telemetry subscriptions go in tsSubCmds, attribute subscriptions in
// attrSubCmds. An empty keys list subscribes to every key.
func NewSubscribeRequest(deviceID uuid.UUID, scope twin.Scope, keys []string, cmdID int32) (SubscribeRequest, error) {
	if !scope.Valid() {
		return SubscribeRequest{}, fmt.Errorf("%w: scope %q", ErrInvalidSubscription, scope)
	}
	if deviceID == uuid.Nil {
		return SubscribeRequest{}, fmt.Errorf("%w: nil device id", ErrInvalidSubscription)
	}
	for _, k := range keys {
		if k == "" || strings.Contains(k, ",") {
			return SubscribeRequest{}, fmt.Errorf("%w: key %q", ErrInvalidSubscription, k)
		}
	}

	cmd := SubscriptionCommand{
		CmdID:      cmdID,
		EntityType: EntityTypeDevice,
		EntityID:   deviceID.String(),
		Scope:      scope,
		Keys:       strings.Join(keys, ","),
	}

	req := SubscribeRequest{
		AttrSubCmds: []SubscriptionCommand{},
		TsSubCmds:   []SubscriptionCommand{},
		HistoryCmds: []SubscriptionCommand{},
	}
	if scope == twin.ScopeLatestTelemetry {
		req.TsSubCmds = append(req.TsSubCmds, cmd)
	} else {
		req.AttrSubCmds = append(req.AttrSubCmds, cmd)
	}
	return req, nil
}

// Commands returns every command in the request.
func (r SubscribeRequest) Commands() []SubscriptionCommand {
	out := make([]SubscriptionCommand, 0, len(r.AttrSubCmds)+len(r.TsSubCmds)+len(r.HistoryCmds))
	out = append(out, r.AttrSubCmds...)
	out = append(out, r.TsSubCmds...)
	return append(out, r.HistoryCmds...)
}

// NewCommandID returns a random command id.
func NewCommandID() int32 {
	return rand.Int32()
}
