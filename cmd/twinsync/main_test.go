package main

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-twin/internal/session"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

const testDeviceID = "7d1f3c2e-5a4b-4c6d-9e8f-0a1b2c3d4e5f"

// writeConfig writes a config whose history database lives in a temp dir
// and points run at it.
func writeConfig(t *testing.T, deviceID string, mqttPort int) {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "twinsync.yaml")
	dbPath := filepath.Join(tmpDir, "twinsync.db")

	content := `
device:
  id: "` + deviceID + `"
  name: test-device

sync:
  ignore_twin_null: true
  scopes: [CLIENT_SCOPE, SHARED_SCOPE]
  subscribe_keys:
    SHARED_SCOPE: [targetTemperature]

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

history:
  enabled: true
  retention_days: 7

mqtt:
  broker:
    host: "127.0.0.1"
    port: ` + strconv.Itoa(mqttPort) + `
    client_id: "twinsync-main-test"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 5

api:
  enabled: false

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv(configEnv, configPath)
	t.Setenv("TWINSYNC_DEVICE_ID", "")
}

func TestRun_InvalidConfigPath(t *testing.T) {
	t.Setenv(configEnv, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_MissingDeviceID(t *testing.T) {
	writeConfig(t, "", 1883)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without a device id")
	}
	if !strings.Contains(err.Error(), "device.id") {
		t.Errorf("run() error = %v, want device.id complaint", err)
	}
}

func TestRun_UnreachableBroker(t *testing.T) {
	writeConfig(t, testDeviceID, 19999)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the broker is unreachable")
	}
	if !strings.Contains(err.Error(), "MQTT") {
		t.Errorf("run() error = %v, want MQTT failure", err)
	}
}

// TestRun_StartupAndShutdown requires an MQTT broker at 127.0.0.1:1883.
func TestRun_StartupAndShutdown(t *testing.T) {
	writeConfig(t, testDeviceID, 1883)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Logf("run() returned error: %v (may be due to missing MQTT broker)", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(configEnv, "")
		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		want := "/custom/path/config.yaml"
		t.Setenv(configEnv, want)
		if got := getConfigPath(); got != want {
			t.Errorf("getConfigPath() = %q, want %q", got, want)
		}
	})
}

func TestSubscribeScopes(t *testing.T) {
	sess, err := session.New(session.Deps{DeviceID: uuid.MustParse(testDeviceID)})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	cfg := config.SyncConfig{
		Scopes: []string{"CLIENT_SCOPE", "SERVER_SCOPE"},
		SubscribeKeys: map[string][]string{
			"SERVER_SCOPE": {"active"},
		},
	}
	if err := subscribeScopes(context.Background(), sess, cfg); err != nil {
		t.Fatalf("subscribeScopes() error = %v", err)
	}

	got := map[twin.Scope]int{}
	for _, scope := range sess.Subscriptions() {
		got[scope]++
	}
	if got[twin.ScopeClient] != 1 || got[twin.ScopeServer] != 1 || len(got) != 2 {
		t.Errorf("subscriptions by scope = %v", got)
	}
}

func TestSubscribeScopes_InvalidScope(t *testing.T) {
	sess, err := session.New(session.Deps{DeviceID: uuid.MustParse(testDeviceID)})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}

	err = subscribeScopes(context.Background(), sess, config.SyncConfig{Scopes: []string{"NOT_A_SCOPE"}})
	if err == nil {
		t.Fatal("subscribeScopes() error = nil, want invalid scope")
	}
	if len(sess.Subscriptions()) != 0 {
		t.Errorf("failed subscription left %d entries", len(sess.Subscriptions()))
	}
}
