// Gray Logic Arbiter - command arbitration and dispatch
//
// The arbiter grants agents exclusive locks over device commands and
// forwards authorised commands to the front-end handler serving each
// endpoint (loopback for testing, MQTT bridges in production).
//
// Usage:
//
//	arbiter --config configs/config.yaml
//	arbiter --config configs/config.yaml --issue-token ops-console --role operator
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/gray-logic-arbiter/migrations"

	"github.com/nerrad567/gray-logic-arbiter/internal/activity"
	"github.com/nerrad567/gray-logic-arbiter/internal/api"
	"github.com/nerrad567/gray-logic-arbiter/internal/arbitration"
	"github.com/nerrad567/gray-logic-arbiter/internal/audit"
	"github.com/nerrad567/gray-logic-arbiter/internal/auth"
	"github.com/nerrad567/gray-logic-arbiter/internal/catalog"
	"github.com/nerrad567/gray-logic-arbiter/internal/dispatch"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend/loopback"
	"github.com/nerrad567/gray-logic-arbiter/internal/frontend/mqttproto"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-arbiter/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
	issueToken  string
	role        string
	tokenTTL    time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options

	fs := pflag.NewFlagSet("arbiter", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configPath, "config", "c", getConfigPath(), "path to the YAML configuration file")
	fs.BoolVar(&o.showVersion, "version", false, "print version information and exit")
	fs.StringVar(&o.issueToken, "issue-token", "", "print a bearer token for this agent ID and exit")
	fs.StringVar(&o.role, "role", string(auth.RoleAgent), "role for --issue-token: agent, operator or admin")
	fs.DurationVar(&o.tokenTTL, "token-ttl", 0, "lifetime for --issue-token (default security.jwt.access_token_ttl)")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Printf("arbiter %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.issueToken != "":
		if err := printToken(opts, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printToken signs a bearer token with the configured secret.
func printToken(opts options, w io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ttl := opts.tokenTTL
	if ttl <= 0 {
		ttl = cfg.Security.JWT.AccessTokenTTL
	}
	token, err := auth.GenerateToken(auth.TokenParams{
		AgentID: opts.issueToken,
		Role:    auth.Role(opts.role),
		Issuer:  cfg.Security.JWT.Issuer,
		TTL:     ttl,
	}, cfg.Security.JWT.Secret)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Arbiter",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

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

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeoutDuration(),
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

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	catalogRegistry := catalog.NewRegistry(catalog.NewSQLiteRepository(db.DB))
	catalogRegistry.SetLogger(log.Component("catalog"))
	if err := loadCatalog(ctx, catalogRegistry, cfg.Catalog.SeedFile); err != nil {
		return err
	}
	stats := catalogRegistry.Stats()
	log.Info("catalog loaded", "endpoints", stats.Endpoints, "commands", stats.Commands)

	promMetrics := metrics.New()
	checks := map[string]api.HealthChecker{"database": db}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditWriter := audit.NewWriter(auditRepo, audit.DefaultBuffer, log.Component("audit"))
	defer auditWriter.Close()

	// The hub outlives the API server so late events during shutdown are
	// dropped rather than sent to closed connections.
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"),
		activity.ChannelLocks, activity.ChannelCommands, activity.ChannelEndpoints)
	go hub.Run(hubCtx)

	sinks := activity.Sinks{
		Audit:       auditWriter,
		Metrics:     promMetrics,
		Broadcaster: hub,
	}
	if influxClient != nil {
		sinks.TimeSeries = influxClient
	}
	if mqttClient != nil {
		sinks.Publisher = mqttClient
		sinks.EventTopic = mqtt.Topics{}.Event
	}
	recorder := activity.New(sinks)
	recorder.SetLogger(log.Component("activity"))

	locks := arbitration.NewService(arbitration.NewStore(), arbitration.Options{
		DefaultTTL: cfg.Arbitration.DefaultTTL,
		MaxTTL:     cfg.Arbitration.MaxTTL,
	})
	locks.SetLogger(log.Component("arbitration"))
	locks.SetValidator(catalogRegistry)
	locks.SetRecorder(recorder)

	protocols := cfg.Frontend.Protocols
	if mqttClient == nil && slices.Contains(protocols, mqttproto.Name) {
		log.Warn("MQTT disabled, endpoints using the mqtt protocol will not be served")
		protocols = slices.DeleteFunc(slices.Clone(protocols), func(p string) bool { return p == mqttproto.Name })
	}

	handlers := frontend.NewRegistry()
	manager := frontend.NewManager(handlers, catalogRegistry, frontend.ManagerOptions{
		Protocols:    protocols,
		ConfigKeys:   cfg.Frontend.ConfigKeys,
		SyncInterval: cfg.Frontend.SyncInterval,
		OnStatus:     recorder.RecordEndpointStatus,
	})
	manager.SetLogger(log.Component("frontend"))
	if err := manager.Register(loopback.New(), loopback.Configurer{}); err != nil {
		return fmt.Errorf("registering loopback protocol: %w", err)
	}
	if mqttClient != nil {
		proto := mqttproto.New(mqttClient)
		proto.SetLogger(log.Component("mqttproto"))
		if err := manager.Register(proto, mqttproto.Configurer{}); err != nil {
			return fmt.Errorf("registering mqtt protocol: %w", err)
		}
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting frontend manager: %w", err)
	}
	defer func() {
		log.Info("stopping frontend handlers")
		manager.Stop()
	}()

	dispatcher := dispatch.New(locks, catalogRegistry, handlers, dispatch.Options{
		DefaultTimeout: cfg.Dispatch.DefaultTimeout,
	})
	dispatcher.SetLogger(log.Component("dispatch"))
	dispatcher.SetRecorder(recorder)

	promMetrics.Gauge("lock", "active", "Locks currently in force.", func() float64 {
		return float64(len(locks.List(context.Background())))
	})
	promMetrics.Gauge("frontend", "handlers", "Registered front-end handlers.", func() float64 {
		return float64(handlers.Len())
	})

	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log,
		Locks:       locks,
		Dispatcher:  dispatcher,
		Catalog:     catalogRegistry,
		Handlers:    handlers,
		Audit:       auditRepo,
		Metrics:     promMetrics,
		DB:          db.DB,
		Checks:      checks,
		ExternalHub: hub,
		Version:     version,
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

	go reloadOnHangup(ctx, log, catalogRegistry, manager, cfg.Catalog.SeedFile)

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, frontend handlers,
	// hub, audit writer, InfluxDB, MQTT, database.
	return nil
}

// loadCatalog imports the seed file when one is configured, otherwise it
// reads what the database already holds.
func loadCatalog(ctx context.Context, registry *catalog.Registry, seedFile string) error {
	if seedFile == "" {
		if err := registry.RefreshCache(ctx); err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
		return nil
	}

	seed, err := catalog.LoadSeed(seedFile)
	if err != nil {
		return fmt.Errorf("loading catalog seed: %w", err)
	}
	if err := registry.Import(ctx, seed); err != nil {
		return fmt.Errorf("importing catalog seed: %w", err)
	}
	return nil
}

// reloadOnHangup re-imports the catalog and re-syncs handlers on SIGHUP.
func reloadOnHangup(ctx context.Context, log *logging.Logger, registry *catalog.Registry, manager *frontend.Manager, seedFile string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		if err := loadCatalog(ctx, registry, seedFile); err != nil {
			log.Error("catalog reload failed", "error", err)
			continue
		}
		report, err := manager.Sync(ctx)
		if err != nil {
			log.Error("handler sync failed", "error", err)
			continue
		}
		log.Info("catalog reloaded",
			"added", report.Added,
			"reloaded", report.Reloaded,
			"removed", report.Removed,
			"failed", report.Failed,
		)
	}
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
