// indibridge connects an INDI server to MQTT, InfluxDB, an HTTP/WebSocket
// API and an MCP tool server.
//
// It keeps a live registry of every device property the server defines,
// records value history in SQLite, and forwards property changes from
// clients back to the server as new*Vector requests. Optionally it runs
// indiserver itself and restarts it when it fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nerrad567/indi-bridge/internal/api"
	bridge "github.com/nerrad567/indi-bridge/internal/bridges/indi"
	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/indiserver"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/config"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/database"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/indi-bridge/internal/mcp"
	"github.com/nerrad567/indi-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// defaultConfigPath is used when INDIBRIDGE_CONFIG is not set.
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often history older than the retention window
	// is deleted.
	pruneInterval = time.Hour
)

// errINDIClosed ends run when the INDI stream stops. The process exits
// non-zero so the service manager restarts it with a fresh connection.
var errINDIClosed = errors.New("INDI connection closed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled or the INDI
// connection ends. Deferred cleanups run in reverse start order.
func run(ctx context.Context) error {
	// stdout may carry MCP traffic, so nothing logs there before the
	// config says it may.
	log := logging.New(config.LoggingConfig{Level: "info", Format: "json", Output: "stderr"}, version)
	log.Info("starting indibridge",
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

	if cfg.MCP.Enabled {
		cfg.Logging.Output = "stderr"
	}
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	var history *device.SQLiteHistoryRepository
	if cfg.History.Enabled {
		history = device.NewSQLiteHistoryRepository(db.DB, cfg.History.MaxRowsPerProperty)
		pruneCtx, stopPrune := context.WithCancel(ctx)
		defer stopPrune()
		go pruneHistory(pruneCtx, history, cfg.HistoryRetention(), log)
		log.Info("property history enabled",
			"retention_days", cfg.History.RetentionDays,
			"max_rows_per_property", cfg.History.MaxRowsPerProperty,
		)
	} else {
		log.Info("property history disabled")
	}

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	serverAddr := cfg.INDI.Server
	var supervisor *indiserver.Supervisor
	if cfg.INDI.ServerProcess.Enabled {
		supervisor, err = startSupervisor(ctx, cfg.INDI.ServerProcess, log)
		if err != nil {
			return fmt.Errorf("starting indiserver: %w", err)
		}
		defer func() {
			log.Info("stopping indiserver")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping indiserver", "error", stopErr)
			}
		}()
		serverAddr = supervisor.Address()
	}

	conn, err := indi.Dial(ctx, indi.Config{
		Server:         serverAddr,
		ConnectTimeout: time.Duration(cfg.INDI.ConnectTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.INDI.WriteTimeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connecting to INDI server: %w", err)
	}
	conn.SetLogger(log.Component("indi"))
	defer func() {
		log.Info("closing INDI connection")
		if closeErr := conn.Close(); closeErr != nil {
			log.Error("error closing INDI connection", "error", closeErr)
		}
	}()
	log.Info("INDI server connected", "server", serverAddr)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		if cfg.MQTT.Embedded.Enabled {
			broker, brokerErr := mqtt.StartBroker(cfg.MQTT.Embedded.Address, log.Component("mqtt-broker").Logger)
			if brokerErr != nil {
				return fmt.Errorf("starting embedded MQTT broker: %w", brokerErr)
			}
			defer func() {
				log.Info("stopping embedded MQTT broker")
				if closeErr := broker.Close(); closeErr != nil {
					log.Error("error stopping MQTT broker", "error", closeErr)
				}
			}()
			log.Info("embedded MQTT broker started", "address", broker.Address())
			cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port = loopback(broker.Address(), cfg.MQTT.Broker.Port)
		}

		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log.Component("mqtt"))
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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

	// Optional dependencies are assigned only when present so the
	// interfaces stay nil rather than holding typed nil pointers.
	opts := bridge.Options{
		Conn:        conn,
		Registry:    registry,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Version:     version,
		Logger:      log.Component("bridge"),
	}
	if mqttClient != nil {
		opts.MQTT = mqttClient
	}
	if history != nil {
		opts.History = history
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}
	indiBridge, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := indiBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		indiBridge.Stop()
	}()

	// Definitions are requested only once the bridge is receiving.
	if err := requestProperties(ctx, conn, cfg.INDI, log); err != nil {
		return err
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Registry: registry,
			Setter:   indiBridge,
			INDI:     conn,
			DB:       db.DB,
			Version:  version,
		}
		if history != nil {
			deps.History = history
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if supervisor != nil {
			deps.Server = supervisor
		}
		apiServer, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if cfg.MCP.Enabled {
		if err := startMCP(ctx, registry, indiBridge, history, log); err != nil {
			return err
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown requested during startup")
			return nil
		}
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-conn.Done():
		log.Error("INDI connection lost, shutting down", "error", conn.Err())
		return errINDIClosed
	}

	log.Info("indibridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses INDIBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INDIBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startSupervisor launches indiserver and waits until it accepts clients.
func startSupervisor(ctx context.Context, cfg config.ServerProcessConfig, log *logging.Logger) (*indiserver.Supervisor, error) {
	supervisor, err := indiserver.New(indiserver.FromConfig(cfg))
	if err != nil {
		return nil, err
	}
	supervisor.SetLogger(log.Component("indiserver"))

	log.Info("starting indiserver", "binary", cfg.Binary, "port", cfg.Port, "drivers", cfg.Drivers)
	if err := supervisor.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("indiserver ready", "address", supervisor.Address())
	return supervisor, nil
}

// requestProperties sends getProperties for the configured devices, or for
// all devices when none are listed, and then enableBLOB per device.
func requestProperties(ctx context.Context, conn *indi.Conn, cfg config.INDIConfig, log *logging.Logger) error {
	if len(cfg.Devices) == 0 {
		if err := conn.GetProperties(ctx, "", ""); err != nil {
			return fmt.Errorf("requesting properties: %w", err)
		}
		if cfg.BLOBMode != "" {
			log.Warn("indi.blob_mode needs indi.devices to be listed, not sent", "blob_mode", cfg.BLOBMode)
		}
		log.Info("requested properties", "devices", "all")
		return nil
	}

	for _, dev := range cfg.Devices {
		if err := conn.GetProperties(ctx, dev, ""); err != nil {
			return fmt.Errorf("requesting properties for %s: %w", dev, err)
		}
		if cfg.BLOBMode == "" {
			continue
		}
		if err := conn.EnableBLOB(ctx, dev, "", indi.BLOBEnable(cfg.BLOBMode)); err != nil {
			return fmt.Errorf("enabling BLOBs for %s: %w", dev, err)
		}
	}
	log.Info("requested properties", "devices", cfg.Devices, "blob_mode", cfg.BLOBMode)
	return nil
}

// startMCP serves MCP on stdio in the background. The server ends with ctx
// or when the client closes stdin; the rest of the service keeps running.
func startMCP(ctx context.Context, registry *device.Registry, setter *bridge.Bridge, history *device.SQLiteHistoryRepository, log *logging.Logger) error {
	deps := mcp.Deps{
		Registry: registry,
		Setter:   setter,
		Logger:   log.Component("mcp"),
		Version:  version,
	}
	if history != nil {
		deps.History = history
	}
	server, err := mcp.New(deps)
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	go func() {
		if serveErr := server.ServeStdio(ctx); serveErr != nil {
			log.Error("MCP server error", "error", serveErr)
		}
	}()
	return nil
}

// pruneHistory deletes history older than retention every pruneInterval.
// A zero retention keeps everything.
func pruneHistory(ctx context.Context, history device.HistoryRepository, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := history.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("history prune failed", "error", err)
		case n > 0:
			log.Info("history pruned", "rows", n, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// loopback returns the host and port a local client uses to reach a
// listener bound to address. fallbackPort is kept if address has none.
func loopback(address string, fallbackPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "127.0.0.1", fallbackPort
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = fallbackPort
	}
	return host, port
}

// healthCheck verifies the infrastructure connections after startup.
// MQTT and InfluxDB are skipped when disabled.
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
	return nil
}
