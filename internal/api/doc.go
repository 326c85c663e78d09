// Package api serves the local inspection API of the twin sync daemon.
//
// Endpoints, all under /api/v1:
//
//	GET  /health                   liveness and version
//	GET  /metrics                  runtime, connection and twin statistics
//	GET  /twin                     full twin state
//	GET  /twin/{scope}             one scope
//	GET  /twin/{scope}/{key}       one attribute
//	POST /twin/diff                diff a candidate against the twin
//	POST /twin/push                diff a candidate and publish the changes
//	GET  /subscriptions            active subscription command ids
//	GET  /history/{scope}/{key}    local attribute history
//	GET  /averages/{key}           moving average of a numeric telemetry key
//	GET  /ws                       live attribute.updated events
//
// The API is meant for the local host only and carries no authentication.
// It keeps working without MQTT or a history database; endpoints that need
// them answer 503.
package api
