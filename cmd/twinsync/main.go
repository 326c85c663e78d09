// twinsync keeps a local twin of one remote device's attributes.
//
// It subscribes to the device's attribute scopes over MQTT, applies push
// notifications to the twin, and publishes only the attributes that differ
// when a desired state arrives. Applied updates are recorded to SQLite and,
// optionally, InfluxDB. A local HTTP/WebSocket API exposes the twin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-twin/internal/api"
	"github.com/nerrad567/gray-logic-twin/internal/history"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-twin/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-twin/internal/session"
	"github.com/nerrad567/gray-logic-twin/internal/twin"
	"github.com/nerrad567/gray-logic-twin/migrations"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "TWINSYNC_CONFIG"

	pruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until ctx is cancelled.
// Resources are released in reverse order through defers.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting twinsync", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	deviceID := cfg.DeviceUUID()
	log.Info("configuration loaded",
		"device_id", deviceID,
		"device_name", cfg.Device.Name,
		"ignore_twin_null", cfg.Sync.IgnoreTwinNull,
	)

	var recorders []session.Recorder

	// Local history
	var db *database.DB
	var historyRepo *history.SQLiteRepository
	if cfg.History.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		historyRepo = history.NewSQLiteRepository(db.DB)
		recorders = append(recorders, historyRepo)

		if retention := cfg.HistoryRetention(); retention > 0 {
			go historyRepo.PruneLoop(ctx, pruneInterval, retention, log)
		}
	} else {
		log.Info("attribute history disabled")
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("closing MQTT connection")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected", "broker", cfg.MQTT.Broker.Host)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	relay := mqtt.NewRelay(mqttClient, deviceID, byte(cfg.MQTT.QoS)) //nolint:gosec // Validated to 0-2
	relay.SetLogger(log)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Twin session
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	sess, err := session.New(session.Deps{
		DeviceID:   deviceID,
		Publisher:  relay,
		Subscriber: relay,
		Recorders:  recorders,
		Hub:        hub,
		Logger:     log,

		AverageWindow:     cfg.AverageWindow(),
		AverageMinSamples: cfg.Sync.AverageMinSamples,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	if err := relay.Start(ctx, sess, cfg.Sync.IgnoreTwinNull); err != nil {
		return fmt.Errorf("starting MQTT relay: %w", err)
	}

	if err := subscribeScopes(ctx, sess, cfg.Sync); err != nil {
		return err
	}

	// API server
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Logger:         log,
			Session:        sess,
			MQTT:           mqttClient,
			Hub:            hub,
			IgnoreTwinNull: cfg.Sync.IgnoreTwinNull,
			Version:        version,
		}
		if historyRepo != nil {
			deps.History = historyRepo
			deps.DB = db.DB
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("twinsync stopped")
	return nil
}

// subscribeScopes sends one subscription per configured scope.
func subscribeScopes(ctx context.Context, sess *session.Session, cfg config.SyncConfig) error {
	for _, s := range cfg.Scopes {
		scope := twin.Scope(s)
		if _, err := sess.Subscribe(ctx, scope, cfg.SubscribeKeys[s]); err != nil {
			return fmt.Errorf("subscribing to %s: %w", scope, err)
		}
	}
	return nil
}

func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every connected dependency. db and influxClient may
// be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
