// Package config loads and validates the twin sync daemon configuration.
//
// Values are resolved in three layers: built-in defaults, then the YAML file,
// then TWINSYNC_* environment variables. Credentials (MQTT password, InfluxDB
// token) should come from the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/twinsync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	deviceID := cfg.DeviceUUID()
package config
