package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/kasametrics/migrations"

	"github.com/nerrad567/kasametrics/internal/api"
	"github.com/nerrad567/kasametrics/internal/collector"
	"github.com/nerrad567/kasametrics/internal/device"
	"github.com/nerrad567/kasametrics/internal/history"
	"github.com/nerrad567/kasametrics/internal/infrastructure/config"
	"github.com/nerrad567/kasametrics/internal/infrastructure/database"
	"github.com/nerrad567/kasametrics/internal/infrastructure/influxdb"
	"github.com/nerrad567/kasametrics/internal/infrastructure/logging"
	"github.com/nerrad567/kasametrics/internal/infrastructure/loki"
	"github.com/nerrad567/kasametrics/internal/infrastructure/mqtt"
	"github.com/nerrad567/kasametrics/internal/infrastructure/tsdb"
	"github.com/nerrad567/kasametrics/internal/kasa"
)

// backend is a connected time-series sink.
type backend interface {
	collector.Sink
	HealthCheck(ctx context.Context) error
	Close() error
	Name() string
}

// run is the collector process, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func run(ctx context.Context, cfgPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting kasametrics",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", cfgPath)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Forwarding is optional; if disabled only local logging occurs.
	fwd := startForwarding(cfg, logging.New(cfg.Logging, version), reg)
	defer fwd.Close()

	log = logging.New(cfg.Logging, version, fwd.forwarders...)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"forwarders", len(fwd.forwarders),
	)

	sink, err := connectSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing sink", "sink", sink.Name())
		if closeErr := sink.Close(); closeErr != nil {
			log.Error("error closing sink", "sink", sink.Name(), "error", closeErr)
		}
	}()
	log.Info("sink connected", "sink", sink.Name())

	checks := map[string]api.HealthChecker{sink.Name(): sink}

	var store *history.Store
	if cfg.History.Enabled {
		db, openErr := openHistory(ctx, cfg.History)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		store = history.NewStore(db, time.Duration(cfg.History.RetentionDays)*24*time.Hour)
		checks["history"] = db
		log.Info("history database ready", "path", cfg.History.Path, "retention_days", cfg.History.RetentionDays)
	}

	registry, err := device.FromConfig(cfg.Devices)
	if err != nil {
		return fmt.Errorf("building device registry: %w", err)
	}
	poller, err := device.NewPoller(registry, kasa.NewHandle, cfg.Collector.DeviceTimeout)
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	poller.SetLogger(log.With("component", "poller"))
	log.Info("device registry initialised", "devices", registry.Len())

	metrics := collector.NewMetrics(reg)
	opts := collector.Options{
		Measurement:  cfg.Collector.Measurement,
		WriteTimeout: cfg.Collector.WriteTimeout,
		Logger:       log.With("component", "collector"),
		Metrics:      metrics,
		ErrorKind:    kasa.ErrorKind,
	}
	if store != nil {
		opts.Recorder = store
	}
	coll := collector.New(registry, poller, sink, opts)

	sched, err := collector.NewScheduler(cfg.Collector.Interval, func(ctx context.Context, start time.Time) {
		coll.RunCycle(ctx, start)
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	sched.SetLogger(log.With("component", "scheduler"))
	sched.SetMetrics(metrics)

	if cfg.API.Enabled {
		var cycles api.CycleSource = coll
		if store != nil {
			cycles = store
		}

		srv, apiErr := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log.With("component", "api"),
			Devices:   poller,
			Cycles:    cycles,
			Scheduler: sched,
			Gatherer:  reg,
			Checks:    checks,
			Version:   version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, polling",
		"interval", cfg.Collector.Interval,
		"device_timeout", cfg.Collector.DeviceTimeout,
	)

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	log.Info("shutdown signal received, cleaning up", "cycles", sched.Cycles())
	log.Info("kasametrics stopped")
	return nil
}

// connectSink connects the enabled time-series backend.
func connectSink(ctx context.Context, cfg *config.Config) (backend, error) {
	if cfg.InfluxDB.Enabled {
		c, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		return c, nil
	}

	c, err := tsdb.Connect(ctx, cfg.TSDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to VictoriaMetrics: %w", err)
	}
	return c, nil
}

// openHistory opens and migrates the cycle history database.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (*database.DB, error) {
	db, err := openHistoryDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running history migrations: %w", err)
	}
	return db, nil
}

// openHistoryDB opens the cycle history database without migrating it.
func openHistoryDB(ctx context.Context, cfg config.HistoryConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	return db, nil
}

// forwarding owns the remote log sinks and their forwarders.
type forwarding struct {
	forwarders []*logging.Forwarder
	mqtt       *mqtt.Client
}

// startForwarding creates a forwarder per enabled log sink. Sinks that fail
// to connect are reported through local and skipped; the collector runs
// without them.
func startForwarding(cfg *config.Config, local *logging.Logger, reg prometheus.Registerer) *forwarding {
	f := &forwarding{}

	if cfg.Loki.Enabled {
		client, err := loki.New(cfg.Loki)
		if err != nil {
			local.Warn("loki forwarding disabled", "error", err)
		} else {
			f.add("loki", client, logging.ParseLevel(cfg.Loki.Level), local, reg)
			local.Info("forwarding logs to loki", "url", client.URL(), "level", cfg.Loki.Level)
		}
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			local.Warn("mqtt forwarding disabled", "error", err,
				"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)))
		} else {
			client.SetOnConnect(func() { local.Info("MQTT reconnected") })
			client.SetOnDisconnect(func(err error) { local.Warn("MQTT disconnected", "error", err) })
			f.mqtt = client

			sink := mqtt.NewLogSink(client, client.Topics(), byte(cfg.MQTT.QoS))
			f.add("mqtt", sink, logging.ParseLevel(cfg.MQTT.Level), local, reg)
			local.Info("forwarding logs to mqtt", "topic", client.Topics().AllLogs(), "level", cfg.MQTT.Level)
		}
	}

	return f
}

func (f *forwarding) add(name string, sink logging.RemoteSink, level slog.Level, local *logging.Logger, reg prometheus.Registerer) {
	fw := logging.NewForwarder(sink, logging.ForwarderOptions{
		Level: level,
		OnError: func(err error) {
			local.Error("log forwarding failed", "sink", name, "error", err)
		},
	})
	fw.Start()
	f.forwarders = append(f.forwarders, fw)

	labels := prometheus.Labels{"sink": name}
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "kasametrics",
			Name:        "log_records_dropped_total",
			Help:        "Log records dropped because the forwarding queue was full.",
			ConstLabels: labels,
		}, func() float64 { return float64(fw.Dropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "kasametrics",
			Name:        "log_records_forwarded_total",
			Help:        "Log records delivered to the remote sink.",
			ConstLabels: labels,
		}, func() float64 { return float64(fw.Sent()) }),
	)
}

// Close flushes the forwarders before disconnecting MQTT.
func (f *forwarding) Close() {
	for _, fw := range f.forwarders {
		fw.Close()
	}
	if f.mqtt != nil {
		_ = f.mqtt.Close()
	}
}
