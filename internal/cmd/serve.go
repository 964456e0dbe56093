package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/core/engine"
	"github.com/livetrack/livetrack/internal/core/events"
	"github.com/livetrack/livetrack/internal/core/snapshot"
	"github.com/livetrack/livetrack/internal/core/store"
	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/metrics"
	"github.com/livetrack/livetrack/internal/observability"
	"github.com/livetrack/livetrack/internal/server"
	"github.com/livetrack/livetrack/internal/server/handlers"
)

var (
	serverPort   int
	serverHost   string
	runOnce      bool
	snapshotFrom string
	snapshotFile string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// daemon holds everything the run command wires together.
type daemon struct {
	cfg        *config.Config
	db         *store.Store
	source     engine.Source
	push       *snapshot.PushSource
	recent     *events.RecentSink
	reconciler *engine.Reconciler
}

// newDaemon opens the store, restores the rate ledger and assembles the
// reconciler with its sinks. The caller owns db and must close it.
func newDaemon(ctx context.Context, cfg *config.Config, logger events.LogSink) (*daemon, error) {
	rt := &daemon{cfg: cfg, recent: events.NewRecentSink(events.DefaultRecentCapacity)}

	switch cfg.Snapshot.Source {
	case "file":
		rt.source = snapshot.NewFileSource(cfg.Snapshot.File)
	default:
		rt.push = snapshot.NewPushSource(cfg.Snapshot.MaxAge)
		rt.source = rt.push
	}

	writer, err := newBackendWriter(cfg.Backend)
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "backend client setup failed")
	}

	limiter := engine.NewRateLimiter(cfg.MinUpdateInterval)
	sinks := events.MultiSink{
		logger,
		rt.recent,
		events.MetricsSink{Hooks: events.MetricsHooks{
			Write: metrics.RecordWrite,
			Skip:  metrics.RecordSkip,
		}},
	}

	var ledger engine.LedgerStore
	if cfg.Store.PersistLedger || cfg.Store.Journal {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.db = db

		if cfg.Store.PersistLedger {
			entries, err := db.LoadLedger(ctx)
			if err != nil {
				_ = db.Close()
				return nil, errwrap.WrapDatabaseError(ctx, err, "load rate ledger")
			}
			limiter.Restore(entries)
			ledger = db
			if logger.Logger != nil {
				logger.Logger.Info("Rate ledger restored", zap.Int("entries", len(entries)))
			}
		}
		if cfg.Store.Journal {
			sinks = append(sinks, events.JournalSink{
				Recorder: db,
				OnError: func(err error) {
					if logger.Logger != nil {
						logger.Logger.Warn("Journal write failed", zap.Error(err))
					}
				},
			})
		}
	}

	rt.reconciler = engine.New(engine.Options{
		Source:       rt.source,
		Writer:       writer,
		Limiter:      limiter,
		Sink:         sinks,
		Ledger:       ledger,
		LinkTemplate: cfg.Backend.LinkTemplate,
		PollInterval: cfg.PollInterval,
		SettleDelay:  cfg.SettleDelay,
		OnTick: func(report engine.TickReport) {
			metrics.RecordTick(report.Result())
			metrics.SetObservedIdentities(report.Observed)
		},
	})
	return rt, nil
}

func (rt *daemon) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// healthManager wires the probes: tick freshness gates liveness, the store
// and the exporter only gate readiness, and startup waits for the first tick.
func (rt *daemon) healthManager(started time.Time) *handlers.HealthManager {
	hm := handlers.NewHealthManager(handlers.CurrentVersion())

	pollEvery := rt.reconciler.PollInterval()
	hm.RegisterLivenessChecker("reconciler", handlers.TickFreshnessChecker{
		LastTick: rt.reconciler.LastTick,
		MaxAge:   max(10*pollEvery, 30*time.Second),
		Started:  started,
		Grace:    2*pollEvery + rt.cfg.SettleDelay + 30*time.Second,
	})
	hm.SetStartedProbe(func() bool { return !rt.reconciler.LastTick().IsZero() })
	if rt.db != nil {
		hm.RegisterChecker("store", handlers.PingChecker{Ping: rt.db.DB.PingContext})
	}
	if rt.cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	return hm
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"run"},
	Short:   "Run the reconciler and its control API",
	Long: `Run the reconciler: every poll interval the current snapshot is diffed
against the previous one and each appearance or disappearance is written to
the backend, at most once per identity per min_update_interval.

Snapshots are pushed to POST /v1/snapshot (snapshot.source=push) or read
from a JSON/YAML file (snapshot.source=file).

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reset the observed set (config changes apply on restart)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}
		if err := cfg.Validate(); err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
		}

		if runOnce {
			return runSingleTick(ctx, cfg)
		}

		namespace := config.AppName
		if err := observability.InitServerLogger(observability.ServerLogOptions{
			Service:     config.AppName,
			Level:       cfg.Logging.Level,
			Profile:     cfg.Logging.Profile,
			Environment: cfg.Logging.Environment,
			Namespace:   namespace,
		}); err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "logger initialization failed")
		}
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(namespace, cfg.Metrics.Port); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		started := time.Now()
		metrics.SetServerStartTime(started.Unix())

		rt, err := newDaemon(ctx, cfg, events.LogSink{Logger: logger})
		if err != nil {
			return err
		}

		logger.Info("Initializing reconciler",
			zap.String("service", config.AppName),
			zap.String("version", handlers.CurrentVersion()),
			zap.String("source", cfg.Snapshot.Source),
			zap.Duration("poll_interval", cfg.PollInterval),
			zap.Duration("min_update_interval", cfg.MinUpdateInterval),
			zap.Duration("settle_delay", cfg.SettleDelay),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", observability.GetMetricsPort()))

		handlers.SetReconcilerInfo(handlers.ReconcilerInfo{
			Source:            cfg.Snapshot.Source,
			PollInterval:      cfg.PollInterval.String(),
			MinUpdateInterval: cfg.MinUpdateInterval.String(),
			SettleDelay:       cfg.SettleDelay.String(),
		})

		control := &handlers.ControlHandler{
			Reconciler: rt.reconciler,
			Feed:       rt.recent,
		}
		if rt.push != nil {
			control.Snapshots = rt.push
		}

		srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Options{
			Control:      control,
			Health:       rt.healthManager(started),
			ControlToken: cfg.Server.ControlToken,
			Timeouts:     cfg.Server,
			Pprof:        cfg.Debug.PprofEnabled,
		})

		runCtx, stopReconciler := context.WithCancel(ctx)

		// Register graceful shutdown handlers (LIFO order - last registered, first executed)
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			rt.close()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Stopping reconciler, waiting for in-flight writes...")
			stopReconciler()
			rt.reconciler.Wait()
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(resetOnReload(rt.reconciler))

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := rt.reconciler.Run(runCtx); err != nil && err != context.Canceled {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			stopReconciler()
			rt.reconciler.Wait()
			rt.close()
			return errwrap.WrapInternal(ctx, err, "run failed")
		}
		return nil
	},
}

// runSingleTick performs one reconciliation pass and waits for its writes.
// A file source is the only useful source here; a push source has nothing
// to report on a fresh start.
func runSingleTick(ctx context.Context, cfg *config.Config) error {
	if cfg.Snapshot.Source != "file" {
		return errwrap.NewInvalidInputError("--once requires snapshot.source=file")
	}

	logger := observability.CLILogger
	rt, err := newDaemon(ctx, cfg, events.LogSink{Logger: logger})
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.reconciler.Tick(ctx)
	if err != nil {
		return errwrap.WrapServiceUnavailable(ctx, err, "snapshot unavailable")
	}
	rt.reconciler.Wait()

	status := rt.reconciler.Status()
	logger.Info(fmt.Sprintf("Tick complete: %d observed, %d dispatched, %d rate-limited",
		report.Observed, len(report.Dispatched), len(report.Skipped)),
		zap.Int64("written", status.Written),
		zap.Int64("failed", status.Failed))
	if status.Failed > 0 {
		ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Backend writes failed",
			errwrap.NewExternalServiceError(fmt.Sprintf("%d write(s) failed", status.Failed)))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
	serveCmd.Flags().StringVar(&snapshotFrom, "source", "push", "snapshot source: push|file")
	serveCmd.Flags().StringVar(&snapshotFile, "snapshot-file", "", "snapshot file for --source=file (JSON or YAML)")
	serveCmd.Flags().BoolVar(&runOnce, "once", false, "run a single tick against a file source and exit")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("snapshot.source", serveCmd.Flags().Lookup("source"))
	_ = viper.BindPFlag("snapshot.file", serveCmd.Flags().Lookup("snapshot-file"))
}

// resetOnReload forgets the observed set on SIGHUP so the next snapshot is
// diffed from scratch. The rate ledger is kept.
func resetOnReload(rec *engine.Reconciler) func(context.Context) error {
	return func(ctx context.Context) error {
		if log := observability.Logger(); log != nil {
			log.Info("Received SIGHUP: resetting observed set")
		}
		rec.Reset("reload")
		return nil
	}
}
