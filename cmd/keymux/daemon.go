package main

import (
	"context"
	"fmt"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	_ "github.com/nerrad567/keymux/migrations"

	"github.com/nerrad567/keymux/internal/api"
	"github.com/nerrad567/keymux/internal/device"
	"github.com/nerrad567/keymux/internal/engine"
	"github.com/nerrad567/keymux/internal/infrastructure/config"
	"github.com/nerrad567/keymux/internal/infrastructure/database"
	"github.com/nerrad567/keymux/internal/infrastructure/influxdb"
	"github.com/nerrad567/keymux/internal/infrastructure/logging"
	"github.com/nerrad567/keymux/internal/infrastructure/metrics"
	"github.com/nerrad567/keymux/internal/infrastructure/mqtt"
	"github.com/nerrad567/keymux/internal/input"
	"github.com/nerrad567/keymux/internal/keymap"
	"github.com/nerrad567/keymux/internal/orchestrator"
	"github.com/nerrad567/keymux/internal/output"
	"github.com/nerrad567/keymux/internal/retry"
	"github.com/nerrad567/keymux/internal/sound"
)

// runDaemon starts every component in dependency order, runs the
// orchestrator until ctx is cancelled or a fatal error occurs, and tears
// everything down in reverse order.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // nothing left to log to

	log.Info("starting keymux",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// The keymap is the one mandatory input: a missing or malformed file
	// stops startup before anything is created or grabbed.
	km, err := keymap.Load(cfg.Keymap.File)
	if err != nil {
		return fmt.Errorf("loading keymap: %w", err)
	}
	log.Info("keymap loaded", "path", cfg.Keymap.File, "layers", len(km.Layers))

	// Output next: without a virtual keyboard no device may be grabbed.
	out, err := output.Create(output.Options{
		Name:    cfg.Output.Name,
		Vendor:  cfg.Output.Vendor,
		Product: cfg.Output.Product,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil {
			log.Error("error closing virtual keyboard", "error", closeErr)
		}
	}()
	log.Info("virtual keyboard created", "name", out.Name())

	registry, err := device.NewRegistry(device.Options{
		Root:  cfg.Devices.RootDir,
		Paths: devicePaths(cfg.Devices.Paths),
		Watch: cfg.Devices.Watch,
	})
	if err != nil {
		return fmt.Errorf("initialising device registry: %w", err)
	}
	registry.SetLogger(log.Component("device"))
	defer registry.Close() //nolint:errcheck // watcher shutdown only
	log.Info("device registry initialised",
		"devices", len(registry.Known()),
		"watch", registry.Watching(),
	)

	lm, err := km.NewManager()
	if err != nil {
		return fmt.Errorf("building layers: %w", err)
	}

	engCfg := engine.Config{
		Layers:       lm,
		Sink:         out,
		TapHoldWait:  km.TapHoldWait,
		TapDanceWait: km.TapDanceWait,
		Logger:       log.Component("engine"),
	}
	if cfg.Sound.Enabled {
		rate := beep.SampleRate(cfg.Sound.SampleRate)
		if soundErr := speaker.Init(rate, rate.N(cfg.GetSoundBuffer())); soundErr != nil {
			return fmt.Errorf("opening speaker: %w", soundErr)
		}
		defer speaker.Close()

		player, soundErr := sound.New(cfg.Sound.AssetsDir, rate, speaker.Play)
		if soundErr != nil {
			return soundErr
		}
		player.SetLogger(log.Component("sound"))
		engCfg.Sound = player
		log.Info("sound enabled", "assets", cfg.Sound.AssetsDir, "sounds", len(player.Names()))
	}
	eng, err := engine.New(engCfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	var (
		sinks  []orchestrator.Sink
		checks []api.Check
	)

	var sessions device.SessionRepository
	if cfg.Database.Enabled {
		db, dbErr := database.Open(cfg.Database)
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if dbErr := db.Migrate(ctx); dbErr != nil {
			return fmt.Errorf("running migrations: %w", dbErr)
		}
		sessions = device.NewSQLiteSessionRepository(db.DB)
		checks = append(checks, api.Check{Name: "database", Checker: db})
		log.Info("session history enabled", "path", cfg.Database.Path)
	}

	var mqttClient *mqtt.Client
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		checks = append(checks, api.Check{Name: "mqtt", Checker: mqttClient})
		sinks = append(sinks, mqttSink{client: mqttClient})
		if serveErr := mqttClient.ServeEffects(effectHandler(eng, m)); serveErr != nil {
			log.Warn("IPC effect requests unavailable", "error", serveErr)
		}
	}

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
		checks = append(checks, api.Check{Name: "influxdb", Checker: influxClient})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.Component("api"))
		sinks = append(sinks, hubSink{hub: hub})
	}

	notifier := orchestrator.NewNotifier(0, log.Component("notify"), sinks...)
	lm.SetNotifier(notifier.Layer)

	orchCfg := orchestrator.Config{
		Devices: registry,
		Engine:  eng,
		Open: orchestrator.InputOpener(input.Options{
			SelfName: out.Name(),
			Retry:    retryPolicy(cfg.Devices.OpenRetry),
			Logger:   log.Component("input"),
		}),
		Sessions: sessions,
		Metrics:  m,
		Notifier: notifier,
		Logger:   log.Component("orchestrator"),
	}
	if influxClient != nil {
		orchCfg.SessionWriter = influxClient
	}
	orch, err := orchestrator.New(orchCfg)
	if err != nil {
		return err
	}

	// Validate guarantees InfluxDB is enabled alongside telemetry.
	if cfg.Telemetry.Enabled && influxClient != nil {
		tel, telErr := orchestrator.NewTelemetry(cfg.GetTelemetryInterval(), m, influxClient, orch.DeviceName, log.Component("telemetry"))
		if telErr != nil {
			return telErr
		}
		tel.Start()
		defer func() {
			if stopErr := tel.Stop(); stopErr != nil {
				log.Error("error stopping telemetry", "error", stopErr)
			}
		}()
	}

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Engine:   eng,
			Workers:  orch.Readers(),
			Sessions: sessions,
			Metrics:  m,
			Hub:      hub,
			Checks:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := srv.Start(ctx); apiErr != nil {
			return apiErr
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		checks = append(checks, api.Check{Name: "api", Checker: srv})
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("keymux running", "health_checks", len(checks))
	if err := orch.Run(ctx); err != nil {
		log.Error("keymux stopped", "error", err)
		return err
	}
	log.Info("shutdown signal received, stopping")
	return nil
}

func retryPolicy(cfg config.OpenRetryConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.BaseDelay > 0 {
		p.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	return p
}
