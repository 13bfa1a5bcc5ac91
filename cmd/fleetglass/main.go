// FleetGlass Core - fleet telemetry and command dispatch service.
//
// This is the main entry point for the FleetGlass Core application.
// FleetGlass bridges telemetry device peers, an MQTT fabric, a durable
// SQLite store (with optional InfluxDB mirroring), and live WebSocket
// dashboards:
//   - telemetry snapshots are ingested, merged with the device registry,
//     broadcast to dashboards, and persisted
//   - toggle commands are dispatched asynchronously and correlated with
//     device acknowledgments
//   - batch operations are tracked in a queryable ledger
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/fleetglass/fleetglass-core/migrations"

	"github.com/fleetglass/fleetglass-core/internal/api"
	"github.com/fleetglass/fleetglass-core/internal/command"
	"github.com/fleetglass/fleetglass-core/internal/history"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/config"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/database"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/influxdb"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/logging"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/metrics"
	"github.com/fleetglass/fleetglass-core/internal/infrastructure/mqtt"
	"github.com/fleetglass/fleetglass-core/internal/ledger"
	"github.com/fleetglass/fleetglass-core/internal/telemetry"
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
	log.Info("starting FleetGlass Core",
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

	reg := metrics.New()

	// Open database
	db, err := database.Open(database.Config{
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

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

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

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Live telemetry store and durable history
	store := telemetry.NewStore()
	histStore := history.NewStore(db)

	// Seed the registry so known devices show as offline before the
	// first snapshot arrives.
	if registered, regErr := histStore.RegisteredDevices(ctx); regErr != nil {
		log.Warn("loading device registry failed", "error", regErr)
	} else {
		store.SetRegistered(registered)
		log.Info("device registry loaded", "devices", len(registered))
	}

	// Background workers share a context cancelled on shutdown.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var mirror history.Mirror
	if influxClient != nil {
		mirror = influxClient
	}
	syncer := history.NewSyncer(histStore, mirror, cfg.History.QueueSize, log, reg)
	syncerDone := make(chan struct{})
	go func() {
		syncer.Run(workerCtx)
		close(syncerDone)
	}()

	retention := history.NewRetentionJob(histStore, cfg.RetentionHorizon(), cfg.RetentionInterval(), log)
	go retention.Run(workerCtx)

	go registryRefreshLoop(workerCtx, histStore, store, cfg.RegistryRefresh(), log)

	// Command pipeline
	qos := byte(cfg.MQTT.QoS)
	opLedger := ledger.New(cfg.LedgerTTL(), log)
	dispatcher := command.NewDispatcher(mqttClient, store, qos, log, reg)
	correlator := command.NewCorrelator(dispatcher, log, reg)

	// WebSocket hub is shared between the API server and the batch
	// coordinator, so create it up front.
	hub := api.NewHub(cfg.WebSocket, log, reg)
	go hub.Run(workerCtx)

	batch := command.NewBatchCoordinator(dispatcher, store, mqttClient, opLedger, hub,
		cfg.Command.BatchMaxSize, cfg.BatchGracePeriod(), qos, log)

	// Telemetry ingest fans out to the hub and the history queue.
	ingestor := telemetry.NewIngestor(store, hub, syncer, log, reg)

	topics := mqtt.Topics{}
	if err := mqttClient.Subscribe(topics.TelemetryData(), qos, ingestor.Handle); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	if err := mqttClient.Subscribe(topics.CommandResponse(), qos, correlator.Handle); err != nil {
		return fmt.Errorf("subscribing to command responses: %w", err)
	}
	log.Info("fabric subscriptions established",
		"telemetry", topics.TelemetryData(),
		"responses", topics.CommandResponse(),
	)

	// API server
	server, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Logger:         log,
		Telemetry:      store,
		Dispatcher:     dispatcher,
		Batch:          batch,
		Ledger:         opLedger,
		History:        histStore,
		MQTT:           mqttClient,
		DB:             db,
		Metrics:        reg,
		CommandTimeout: cfg.CommandTimeout(),
		ExternalHub:    hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Stop workers first so the syncer drains its queue before the
	// deferred database close runs.
	stopWorkers()
	select {
	case <-syncerDone:
	case <-time.After(5 * time.Second):
		log.Warn("timed out waiting for history queue to drain")
	}

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("FleetGlass Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FLEETGLASS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLEETGLASS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registryRefreshLoop periodically reloads the durable device registry
// into the live store so registry changes (and last-seen updates) reach
// dashboards without a restart.
func registryRefreshLoop(ctx context.Context, histStore *history.Store, store *telemetry.Store, interval time.Duration, log *logging.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registered, err := histStore.RegisteredDevices(ctx)
			if err != nil {
				log.Warn("registry refresh failed", "error", err)
				continue
			}
			store.SetRegistered(registered)
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
