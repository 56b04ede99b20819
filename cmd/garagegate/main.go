// GarageGate - garage door access controller
//
// This is the main entry point for the door controller. It wires the
// event sources (camera, microphone, MQTT, console) to the single
// coordinator that owns the door state, and publishes every transition
// to MQTT, the local audit trail, InfluxDB and WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/adapters/manual"
	"github.com/nerrad567/garagegate/internal/adapters/network"
	"github.com/nerrad567/garagegate/internal/adapters/vision"
	"github.com/nerrad567/garagegate/internal/adapters/voice"
	"github.com/nerrad567/garagegate/internal/api"
	"github.com/nerrad567/garagegate/internal/coordinator"
	"github.com/nerrad567/garagegate/internal/door"
	"github.com/nerrad567/garagegate/internal/history"
	"github.com/nerrad567/garagegate/internal/infrastructure/config"
	"github.com/nerrad567/garagegate/internal/infrastructure/database"
	"github.com/nerrad567/garagegate/internal/infrastructure/influxdb"
	"github.com/nerrad567/garagegate/internal/infrastructure/logging"
	"github.com/nerrad567/garagegate/internal/infrastructure/metrics"
	"github.com/nerrad567/garagegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/garagegate/internal/process"
	"github.com/nerrad567/garagegate/internal/publish"
	"github.com/nerrad567/garagegate/migrations"
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

// pruneInterval is how often the audit trail is trimmed to the retention window.
const pruneInterval = 6 * time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.Default()
	log.Info("starting garagegate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	// Database: audit trail and authorised plates
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	plates := access.NewSQLitePlateStore(db.DB)
	seeded, err := access.SeedPlates(ctx, plates, cfg.Authorization.SeedPlates, log.Component("access").Logger)
	if err != nil {
		return fmt.Errorf("seeding plates: %w", err)
	}
	log.Info("authorised plates loaded", "seeded", seeded)

	m := metrics.New()
	status := adapters.NewStatusBoard(m)

	// MQTT is optional at startup: paho keeps retrying and the publisher
	// backlog is flushed on connect.
	mqttClient, err := mqtt.New(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	if connErr := mqttClient.Connect(ctx); connErr != nil {
		log.Warn("MQTT broker unavailable, continuing offline", "error", connErr)
	} else {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	influxClient := connectInflux(ctx, cfg, log)
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// State fan-out
	publisher := publish.New(mqttClient, publish.Config{
		Topic:     cfg.MQTT.Topics.State,
		Token:     cfg.Security.SharedSecret,
		QueueSize: cfg.Garage.PublishQueueSize,
	})
	publisher.SetLogger(log.Component("publisher"))
	publisher.SetMetrics(m)
	mqttClient.SetOnConnect(func() {
		status.ReportRecovered(network.Name)
		publisher.Retry()
	})
	mqttClient.SetOnDisconnect(func(err error) {
		status.ReportDegraded(network.Name, fmt.Errorf("MQTT connection lost: %w", err))
	})

	historyRepo := history.NewSQLiteRepository(db.DB)
	recorder := history.NewRecorder(historyRepo, log.Component("history"))
	publisher.AddObserver(recorder)
	if influxClient != nil {
		publisher.AddObserver(influxClient)
	}

	// Coordinator
	coord := coordinator.New(coordinator.Config{
		Clock:     door.SystemClock{},
		AutoClose: cfg.AutoClose(),
		InboxSize: cfg.Garage.InboxSize,
		Initial:   door.StateClosed,
	}, access.NewValidator(cfg.Security.SharedSecret, cfg.MaxCommandAge()), publisher)
	coord.SetLogger(log.Component("coordinator"))
	coord.SetMetrics(m)
	coord.SetStatusBoard(status)
	coord.AddRecorder(recorder)
	if influxClient != nil {
		coord.AddRecorder(influxClient)
	}

	preview, err := registerSources(cfg, coord, mqttClient, plates, log)
	if err != nil {
		return err
	}
	if cfg.Manual.Enabled {
		var toggler manual.PreviewToggler
		if preview != nil {
			toggler = preview
		}
		coord.Register(manual.New(manual.Config{
			In:      os.Stdin,
			Out:     os.Stdout,
			Preview: toggler,
			Quit:    cancel,
			Logger:  log.Component("manual"),
		}), adapters.Options{SubmitTimeout: cfg.SubmitTimeout()})
		log.Info("manual console enabled (o=open, c=close, p=preview, q=quit)")
	}

	// Simulator
	var sim *process.Manager
	if cfg.Simulator.Managed {
		sim = process.NewManager(process.Config{
			Name:               "garagesim",
			Binary:             cfg.Simulator.Binary,
			Args:               cfg.Simulator.Args,
			RestartOnFailure:   cfg.Simulator.RestartOnFailure,
			RestartDelay:       time.Duration(cfg.Simulator.RestartDelaySeconds) * time.Second,
			MaxRestartAttempts: cfg.Simulator.MaxRestartAttempts,
		})
		sim.SetLogger(log.Component("simulator"))
	}

	// HTTP API
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		if sim != nil {
			checks["simulator"] = sim
		}

		srv, srvErr := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			SharedSecret: cfg.Security.SharedSecret,
			Logger:       log.Component("api"),
			Door:         coord,
			History:      historyRepo,
			Plates:       plates,
			Status:       status,
			Metrics:      m.Handler(),
			Checks:       checks,
			Version:      version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		publisher.AddObserver(srv.Hub())
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Shutdown runs in stages: the coordinator stops first, the publisher
	// drains what it emitted, then the recorder writes the final entries.
	g, gctx := errgroup.WithContext(ctx)
	coordStopped := goStage(gctx, g, coord.Run)
	publisherStopped := goStage(coordStopped, g, publisher.Run)
	g.Go(func() error { return recorder.Run(publisherStopped) })
	if sim != nil {
		g.Go(func() error {
			// The controller keeps running without its display.
			if simErr := sim.Run(gctx); simErr != nil {
				log.Error("simulator stopped", "error", simErr)
			}
			return nil
		})
	}
	if cfg.Database.RetentionDays > 0 {
		retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			pruneHistory(gctx, historyRepo, retention, log)
			return nil
		})
	}

	log.Info("initialisation complete", "door", coord.Snapshot().State, "auto_close", cfg.AutoClose())

	err = g.Wait()
	if influxClient != nil {
		influxClient.Flush()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("garagegate stopped")
	return nil
}

// goStage runs every fn on g with ctx and returns a context that is
// cancelled once all of them have returned. Passing it to the next stage
// keeps that stage running until everything upstream has finished.
func goStage(ctx context.Context, g *errgroup.Group, fns ...func(context.Context) error) context.Context {
	stopped, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var wg sync.WaitGroup
	for _, fn := range fns {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return fn(ctx)
		})
	}
	go func() {
		wg.Wait()
		cancel()
	}()
	return stopped
}

// registerSources builds the configured automatic sources and registers
// them with the coordinator. It returns the camera preview when vision is
// enabled so the console can toggle it.
func registerSources(cfg *config.Config, coord *coordinator.Coordinator, mqttClient *mqtt.Client, plates access.PlateStore, log *logging.Logger) (*vision.Preview, error) {
	submitTimeout := cfg.SubmitTimeout()

	netAdapter, err := network.New(mqttClient, network.Config{
		Topic:        cfg.MQTT.Topics.Control,
		QoS:          byte(cfg.MQTT.QoS),
		SharedSecret: cfg.Security.SharedSecret,
		Logger:       log.Component("network"),
	})
	if err != nil {
		return nil, fmt.Errorf("starting network adapter: %w", err)
	}
	coord.Register(netAdapter, adapters.Options{SubmitTimeout: submitTimeout})

	var preview *vision.Preview
	if cfg.Vision.Enabled {
		requestTimeout := time.Duration(cfg.Vision.RequestTimeout) * time.Second
		httpClient := &http.Client{Timeout: requestTimeout}

		preview = vision.NewPreview(cfg.Vision.PreviewPath, cfg.Vision.PreviewEnabled)
		coord.Register(vision.New(vision.Config{
			Camera:     vision.NewSnapshotCamera(httpClient, cfg.Vision.SnapshotURL, cfg.Garage.CameraIndexCandidates),
			Recognizer: vision.NewHTTPRecognizer(httpClient, cfg.Vision.RecognizerURL),
			Detector: vision.NewMotionDetector(vision.MotionConfig{
				BlurSigma: cfg.Vision.BlurSigma,
				Threshold: cfg.Vision.DiffThreshold,
				MinArea:   cfg.Vision.MinContourArea,
			}),
			Plates:        plates,
			Cooldown:      cfg.MotionCooldown(),
			MinConfidence: cfg.Vision.MinConfidence,
			Preview:       preview,
			Logger:        log.Component("vision"),
		}), adapters.Options{
			Interval:      time.Duration(cfg.Vision.PollIntervalMS) * time.Millisecond,
			PollTimeout:   2 * requestTimeout,
			SubmitTimeout: submitTimeout,
		})
		log.Info("vision adapter enabled", "cameras", cfg.Garage.CameraIndexCandidates)
	}

	if cfg.Voice.Enabled {
		window := time.Duration(cfg.Voice.ListenSeconds) * time.Second
		requestTimeout := time.Duration(cfg.Voice.RequestTimeout) * time.Second

		coord.Register(voice.New(voice.Config{
			Recorder:       &voice.CommandRecorder{Binary: cfg.Voice.RecorderBinary, Args: cfg.Voice.RecorderArgs},
			Transcriber:    voice.NewHTTPTranscriber(&http.Client{Timeout: requestTimeout}, cfg.Voice.TranscriberURL),
			Window:         window,
			ServiceBackoff: time.Duration(cfg.Voice.RetryBackoffSeconds) * time.Second,
			Logger:         log.Component("voice"),
		}), adapters.Options{
			PollTimeout:   window + requestTimeout + 5*time.Second,
			SubmitTimeout: submitTimeout,
		})
		log.Info("voice adapter enabled", "window", window)
	}

	return preview, nil
}

// connectInflux connects to InfluxDB when enabled. Telemetry is optional,
// so a failure is logged and nil returned.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil
	}

	influxCfg := cfg.InfluxDB
	tags := make(map[string]string, len(influxCfg.Tags)+1)
	for k, v := range influxCfg.Tags {
		tags[k] = v
	}
	if _, ok := tags["site"]; !ok {
		tags["site"] = cfg.Site.ID
	}
	influxCfg.Tags = tags

	client, err := influxdb.Connect(ctx, influxCfg)
	if err != nil {
		log.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
		return nil
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", influxCfg.URL,
		"org", influxCfg.Org,
		"bucket", influxCfg.Bucket,
	)
	return client
}

// pruneHistory trims the audit trail on startup and then periodically
// until ctx ends.
func pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning history failed", "error", err)
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

// getConfigPath returns the configuration file path.
// Uses GARAGEGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GARAGEGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
