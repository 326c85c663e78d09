// Package mqtt connects the twin sync daemon to an MQTT broker.
//
// Client wraps paho.mqtt.golang with auto-reconnect, subscriptions that are
// restored after a reconnect, panic-safe handlers and a retained
// online/offline status on twinsync/system/status (the offline status doubles
// as the Last Will).
//
// Relay is the session's transport. It publishes attribute diffs and
// subscription commands, and feeds inbound push notifications and desired
// state back into the session:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	relay := mqtt.NewRelay(client, deviceID, byte(cfg.MQTT.QoS))
//	sess, err := session.New(session.Deps{DeviceID: deviceID, Publisher: relay, Subscriber: relay})
//	...
//	err = relay.Start(ctx, sess, cfg.Sync.IgnoreTwinNull)
//
// Desired-state messages are JSON objects of attribute name to scalar value,
// one message per scope.
package mqtt
