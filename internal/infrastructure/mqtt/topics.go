package mqtt

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// TopicPrefix is the root of every topic this service uses.
const TopicPrefix = "twinsync"

// Topics builds the twinsync topic hierarchy:
//
//	twinsync/{device}/notifications      push notifications in
//	twinsync/{device}/desired/{scope}    desired attribute values in
//	twinsync/{device}/attributes/{scope} attribute diffs out
//	twinsync/{device}/subscribe/{scope}  subscription commands out (retained)
//	twinsync/system/status               online/offline status (retained, LWT)
type Topics struct{}

// Notifications is the topic carrying push notifications for a device.
func (Topics) Notifications(deviceID uuid.UUID) string {
	return deviceTopic(deviceID, "notifications")
}

// Desired is the topic carrying desired values for one scope of a device.
func (Topics) Desired(deviceID uuid.UUID, scope twin.Scope) string {
	return deviceTopic(deviceID, "desired", string(scope))
}

// AllDesired matches the desired topic of every scope of a device.
func (Topics) AllDesired(deviceID uuid.UUID) string {
	return deviceTopic(deviceID, "desired", "+")
}

// Attributes is the topic attribute diffs for one scope are published to.
func (Topics) Attributes(deviceID uuid.UUID, scope twin.Scope) string {
	return deviceTopic(deviceID, "attributes", string(scope))
}

// Subscribe is the topic the subscription command for one scope is
// published to. Each scope has its own topic so every retained command
// survives.
func (Topics) Subscribe(deviceID uuid.UUID, scope twin.Scope) string {
	return deviceTopic(deviceID, "subscribe", string(scope))
}

// SystemStatus is the retained service status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ParseDesired extracts the device and scope from a desired-state topic.
func (Topics) ParseDesired(topic string) (uuid.UUID, twin.Scope, bool) {
	return parseScopedTopic(topic, "desired")
}

// ParseSubscribe extracts the device and scope from a subscribe topic.
func (Topics) ParseSubscribe(topic string) (uuid.UUID, twin.Scope, bool) {
	return parseScopedTopic(topic, "subscribe")
}

// parseScopedTopic parses twinsync/{device}/{kind}/{scope}.
func parseScopedTopic(topic, kind string) (uuid.UUID, twin.Scope, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[2] != kind {
		return uuid.Nil, "", false
	}
	deviceID, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, "", false
	}
	scope, ok := twin.ParseScope(parts[3])
	if !ok {
		return uuid.Nil, "", false
	}
	return deviceID, scope, true
}

func deviceTopic(deviceID uuid.UUID, parts ...string) string {
	return TopicPrefix + "/" + deviceID.String() + "/" + strings.Join(parts, "/")
}
