// Package logging provides structured logging for the twin sync daemon.
//
// It wraps log/slog with a JSON handler for production and a text handler
// for development. Every record carries the service name and build version.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("twin session started", "device_id", id)
//
// Never log MQTT passwords or InfluxDB tokens.
package logging
