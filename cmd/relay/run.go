package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/archive/recorder"
	"mercator-hq/relay/pkg/archive/retention"
	"mercator-hq/relay/pkg/archive/storage"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/handlers"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"
)

// tracerShutdownTimeout bounds flushing buffered spans on exit.
const tracerShutdownTimeout = 5 * time.Second

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay server",
	Long: `Start the relay server with the specified configuration.

The server listens on the configured address and relays completion calls under
the path prefix (default /v1) to the upstream named by each request's headers.

Examples:
  # Start with defaults
  relay run

  # Start with a config file
  relay run --config /etc/relay/relay.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8787

  # Validate config without starting the server
  relay run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	logCfg := cfg.Telemetry.Logging
	logger, err := logging.New(logging.Config{
		Level:         logCfg.Level,
		Format:        logCfg.Format,
		AddSource:     logCfg.AddSource,
		RedactSecrets: logCfg.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger.Slog())

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	unlock, err := acquireLock(cfg.Proxy.LockFile)
	if err != nil {
		return err
	}
	defer unlock()

	ctx, cancel := cli.SetupSignalHandler(cmd.Context())
	defer cancel()

	slog.Info("starting relay",
		"version", Version,
		"config", cfgFile,
		"default_target", cfg.Upstream.DefaultTarget,
		"archive_enabled", cfg.Archive.Enabled,
	)

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(Version))
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := session.NewRegistry(session.WithObserver(collector))
	pumpOpts := []proxy.PumpOption{
		proxy.WithIdleTimeout(cfg.Proxy.StreamIdleTimeout),
		proxy.WithStreamObserver(collector),
	}

	var (
		store       archive.Storage
		transcripts proxy.TranscriptRecorder
	)
	if cfg.Archive.Enabled {
		s, err := openArchive(&cfg.Archive)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer s.Close()
		store = s

		rec := recorder.New(s, &recorder.Config{
			AsyncBuffer:  cfg.Archive.AsyncBuffer,
			WriteTimeout: cfg.Archive.WriteTimeout,
		})
		// Runs before the store closes so queued transcripts are written.
		defer rec.Close()
		transcripts = rec
		collector.RegisterArchive(rec)
		pumpOpts = append(pumpOpts, proxy.WithTranscriptRecorder(rec))

		scheduler := retention.NewScheduler(retention.NewPruner(s, &retention.Config{
			RetentionDays: cfg.Archive.RetentionDays,
			PruneSchedule: cfg.Archive.PruneSchedule,
		}))
		if err := scheduler.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}
	}

	client := upstream.NewClient(upstream.Config{
		Timeout:             cfg.Upstream.Timeout,
		MaxRetries:          cfg.Upstream.MaxRetries,
		RetryBackoff:        cfg.Upstream.RetryBackoff,
		MaxIdleConns:        cfg.Upstream.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Upstream.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Upstream.IdleConnTimeout,
	})
	defer client.CloseIdleConnections()

	resolver := proxy.NewResolver(cfg.Upstream.DefaultTarget)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.SetActiveStreams(registry.Len)
	if store != nil {
		checker.RegisterCheck("archive", func(ctx context.Context) error {
			_, err := store.Count(ctx)
			return err
		})
	}

	deps := server.Dependencies{
		Relay: &handlers.Relay{
			Resolver:    resolver,
			Upstream:    client,
			Registry:    registry,
			Pump:        proxy.NewPump(registry, pumpOpts...),
			Recorder:    transcripts,
			Metrics:     collector,
			Tracer:      tracer.Tracer(),
			PathPrefix:  cfg.Proxy.PathPrefix,
			MaxBodySize: cfg.Proxy.MaxRequestBody,
		},
		Sessions:  registry,
		Archive:   store,
		Health:    checker,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
	}
	if cfg.Telemetry.Metrics.Enabled {
		deps.Metrics = collector.Handler()
	}

	if cfgFile != "" {
		if err := watchConfig(ctx, cfg, logger, resolver); err != nil {
			slog.Warn("config hot reload disabled", "error", err)
		}
	}

	srv := server.New(cfg, deps)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// acquireLock takes the instance lock so only one relay owns the state
// directory. The returned func releases it.
func acquireLock(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", cli.ErrAlreadyRunning, path)
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release lock", "path", path, "error", err)
		}
	}, nil
}

// openArchive opens the configured transcript store.
func openArchive(cfg *config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:        cfg.Path,
			Driver:      cfg.Driver,
			WALMode:     cfg.WALMode,
			BusyTimeout: cfg.BusyTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}

// watchConfig reloads the configuration file on change and on SIGHUP. Only
// the default upstream target and the log level apply live; everything
// else needs a restart.
func watchConfig(ctx context.Context, cfg *config.Config, logger *logging.Logger, resolver *proxy.Resolver) error {
	watcher, err := config.NewWatcher(cfgFile, cfg)
	if err != nil {
		return err
	}

	onChange := func(old, updated *config.Config) {
		applyReload(old, updated, logger, resolver)
	}

	go func() {
		defer watcher.Close()
		if err := watcher.Watch(ctx, onChange); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	reload := cli.ReloadSignal(ctx)
	go func() {
		for {
			select {
			case <-reload:
				slog.Info("reloading configuration on SIGHUP")
				if err := watcher.Reload(); err != nil {
					slog.Error("config reload failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// applyReload pushes the live-reloadable settings of updated into the
// running relay.
func applyReload(old, updated *config.Config, logger *logging.Logger, resolver *proxy.Resolver) {
	if updated.Upstream.DefaultTarget != old.Upstream.DefaultTarget {
		resolver.SetDefaultTarget(updated.Upstream.DefaultTarget)
		slog.Info("default upstream target changed", "target", updated.Upstream.DefaultTarget)
	}

	if updated.Telemetry.Logging.Level != old.Telemetry.Logging.Level {
		if err := logger.SetLevel(updated.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring invalid log level", "level", updated.Telemetry.Logging.Level, "error", err)
		} else {
			slog.Info("log level changed", "level", updated.Telemetry.Logging.Level)
		}
	}

	if updated.Proxy.ListenAddress != old.Proxy.ListenAddress || updated.Archive != old.Archive {
		slog.Warn("listener and archive changes take effect after restart")
	}
}
