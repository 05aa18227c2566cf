// AquaSentinel Core - Water Quality Fleet Monitoring
//
// This is the main entry point for the AquaSentinel Core application.
// AquaSentinel monitors fleets of remote water-quality sensing devices
// over MQTT:
//   - Device registration with administrative approval
//   - Active presence polling with circuit-breaker backoff
//   - Asynchronous sensor ingestion with retry and rate limiting
//   - Deduplicated threshold alerting with cooldown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/aquasentinel/core/migrations"

	"github.com/aquasentinel/core/internal/api"
	"github.com/aquasentinel/core/internal/infrastructure/config"
	"github.com/aquasentinel/core/internal/infrastructure/database"
	"github.com/aquasentinel/core/internal/infrastructure/influxdb"
	"github.com/aquasentinel/core/internal/infrastructure/logging"
	"github.com/aquasentinel/core/internal/infrastructure/metrics"
	"github.com/aquasentinel/core/internal/infrastructure/mqtt"
	"github.com/aquasentinel/core/internal/ingest"
	"github.com/aquasentinel/core/internal/monitor"
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

// shutdownTimeout bounds queue draining and in-flight HTTP requests
// once the shutdown signal arrives.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AquaSentinel Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and apply migrations
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Connect to the MQTT broker. A failure here is fatal: without the
	// broker there is nothing to monitor. Reconnects after startup are
	// handled by the client itself and are not fatal.
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var readingWriter ingest.ReadingWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			influxClient.Close()
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		readingWriter = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, readings feed alerting only")
	}

	m := metrics.New()

	// Assemble and start the monitoring core
	core := monitor.New(cfg, db.DB, mqttClient, readingWriter, log, m)
	if err := core.Start(ctx); err != nil {
		return fmt.Errorf("starting monitoring core: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		core.Stop(stopCtx)
	}()

	// Ops HTTP server: probes, metrics, read-only listings
	opsServer, err := api.New(api.Deps{
		Config:  cfg.Ops,
		Logger:  log.With("component", "ops"),
		Core:    core,
		Metrics: m,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating ops server: %w", err)
	}
	opsServer.Start()
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer closeCancel()
		if closeErr := opsServer.Close(closeCtx); closeErr != nil {
			log.Error("error closing ops server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Ops server stops accepting requests
	// 2. Core drains the ingestion queue and stops the poller
	// 3. InfluxDB flushes (if enabled)
	// 4. MQTT disconnects — last, and without publishing anything that
	//    could be misread as a live status change
	// 5. Database closes

	log.Info("AquaSentinel Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AQUASENTINEL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AQUASENTINEL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
