// fanlink - IR fan controller daemon
//
// fanlink drives a ceiling fan through a serial-attached IR transmitter.
// It debounces state writes, maps speeds to the fan's three IR bands,
// persists state across restarts, and exposes the fan over MQTT and HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/fanlink/migrations"

	"github.com/nerrad567/fanlink/internal/api"
	"github.com/nerrad567/fanlink/internal/bridge"
	"github.com/nerrad567/fanlink/internal/catalog"
	"github.com/nerrad567/fanlink/internal/fan"
	"github.com/nerrad567/fanlink/internal/infrastructure/config"
	"github.com/nerrad567/fanlink/internal/infrastructure/database"
	"github.com/nerrad567/fanlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/fanlink/internal/infrastructure/logging"
	"github.com/nerrad567/fanlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/fanlink/internal/serial"
	"github.com/nerrad567/fanlink/internal/transmit"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// linkWatchInterval is how often link connectivity is sampled for telemetry.
const linkWatchInterval = 5 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fanlink",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Load the IR signal catalog. The signals the reconciler depends on
	// must exist, or refusing to start beats transmitting nothing later.
	signals := fan.SignalNames{
		Off:  cfg.Fan.Signals.Off,
		Low:  cfg.Fan.Signals.Low,
		Med:  cfg.Fan.Signals.Med,
		High: cfg.Fan.Signals.High,
	}
	cat, err := catalog.Load(cfg.Fan.CatalogPath, signals.All()...)
	if err != nil {
		return fmt.Errorf("loading signal catalog: %w", err)
	}
	log.Info("signal catalog loaded", "path", cfg.Fan.CatalogPath, "signals", cat.Len())

	// Bring up the serial link. Start never fails: if the device is
	// absent the link keeps retrying on a fixed cadence.
	link := serial.New(serial.Config{
		Device:            cfg.Serial.Device,
		BaudRate:          cfg.Serial.BaudRate,
		ReconnectInterval: cfg.Serial.ReconnectInterval(),
		ReadBufferSize:    cfg.Serial.ReadBufferSize,
	}, serial.OpenDevice)
	link.SetLogger(log.With("component", "serial"))
	link.Start()
	defer func() {
		log.Info("closing serial link")
		if closeErr := link.Close(); closeErr != nil {
			log.Error("error closing serial link", "error", closeErr)
		}
	}()
	log.Info("serial link started", "device", cfg.Serial.Device, "baud", cfg.Serial.BaudRate)

	// Transmission engine over the link
	engine := transmit.New(transmit.Config{
		ChunkSize:       cfg.Transmit.ChunkSize,
		MaxAttempts:     cfg.Transmit.Retries,
		InterChunkDelay: cfg.Transmit.InterChunkDelay(),
	}, link)
	engine.SetLogger(log.With("component", "transmit"))

	// State reconciler and fan accessory
	store := fan.NewSQLiteStore(db)
	rec := fan.NewReconciler(fan.Config{
		FanID:    cfg.Fan.ID,
		Debounce: cfg.Fan.Debounce(),
		Thresholds: fan.Thresholds{
			Medium: float64(cfg.Fan.Thresholds.Medium),
			High:   float64(cfg.Fan.Thresholds.High),
		},
		Signals: signals,
	}, cat, engine, store)
	rec.SetLogger(log.With("component", "fan"))
	if restoreErr := rec.Restore(ctx); restoreErr != nil {
		return fmt.Errorf("restoring fan state: %w", restoreErr)
	}
	defer func() {
		log.Info("closing reconciler")
		if closeErr := rec.Close(); closeErr != nil {
			log.Error("error closing reconciler", "error", closeErr)
		}
	}()

	acc := fan.NewAccessory(cfg.Fan.ID, cfg.Fan.Name, rec, engine)
	log.Info("fan accessory ready",
		"fan_id", acc.ID,
		"name", acc.Name,
		"restored_state", rec.State(),
	)

	// Connect to MQTT broker (optional)
	var (
		mqttClient *mqtt.Client
		fanBridge  *bridge.Bridge
		health     *bridge.HealthReporter
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(discErr error) {
			log.Warn("MQTT disconnected", "error", discErr)
		})

		fanBridge, err = bridge.New(bridge.Options{
			FanID: cfg.Fan.ID,
			MQTT:  mqttClient,
			Fan:   acc,
			QoS:   byte(cfg.MQTT.QoS), //nolint:gosec // Validated to 0..2
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		fanBridge.SetLogger(log.With("component", "bridge"))
		if startErr := fanBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			if stopErr := fanBridge.Stop(); stopErr != nil {
				log.Error("error stopping MQTT bridge", "error", stopErr)
			}
		}()

		health = bridge.NewHealthReporter(bridge.HealthReporterConfig{
			BridgeID:  cfg.MQTT.Broker.ClientID,
			Version:   version,
			Interval:  cfg.MQTT.HealthInterval(),
			Publisher: mqttClient,
			Link:      link,
			Engine:    engine,
		})
		health.SetLogger(log.With("component", "health"))
		health.Start(ctx)
		defer health.Stop()
		log.Info("MQTT bridge started", "fan_id", cfg.Fan.ID)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(writeErr error) {
			log.Error("InfluxDB write error", "error", writeErr)
		})

		go watchLink(ctx, link, influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start HTTP API (optional)
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			FanID:   cfg.Fan.ID,
			Fan:     acc,
			Catalog: cat,
			Log:     store,
			Link:    link,
			Engine:  engine,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Fan out settled state to every consumer: retained MQTT state,
	// WebSocket clients, and telemetry.
	rec.OnSettle(func(ev fan.SettleEvent) {
		band := rec.Band()

		if fanBridge != nil {
			if pubErr := fanBridge.PublishState(ev.State, band); pubErr != nil {
				log.Warn("state publish failed", "error", pubErr)
			}
		}

		if apiServer != nil && apiServer.Hub() != nil {
			apiServer.Hub().Broadcast(api.ChannelStateChanged, map[string]any{
				"fan_id": cfg.Fan.ID,
				"on":     ev.State.On,
				"speed":  ev.State.Speed,
				"band":   band,
			})
			if ev.Signal != "" {
				apiServer.Hub().Broadcast(api.ChannelTransmission, map[string]any{
					"fan_id":   cfg.Fan.ID,
					"signal":   ev.Signal,
					"success":  ev.Err == nil,
					"attempts": ev.Result.Attempts,
				})
			}
		}

		if influxClient != nil {
			influxClient.WriteStateChange(cfg.Fan.ID, ev.State.On, ev.State.Speed, string(band))
			if ev.Signal != "" {
				influxClient.WriteTransmission(cfg.Fan.ID, ev.Signal,
					ev.Err == nil, ev.Result.Attempts, ev.Result.Chunks, ev.Result.Duration)
			}
		}
	})

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB, health reporter, bridge, MQTT, reconciler,
	// serial link, database.

	log.Info("fanlink stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FANLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FANLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	// The serial link is intentionally excluded: the daemon runs with the
	// transmitter unplugged and recovers when it reappears.

	return nil
}

// watchLink samples link connectivity and records transitions to InfluxDB.
func watchLink(ctx context.Context, link *serial.Link, influx *influxdb.Client) {
	ticker := time.NewTicker(linkWatchInterval)
	defer ticker.Stop()

	last := link.Stats().Connected
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := link.Stats()
			if stats.Connected != last {
				influx.WriteLinkEvent(stats.Device, stats.Connected, stats.ReconnectsTotal)
				last = stats.Connected
			}
		}
	}
}
