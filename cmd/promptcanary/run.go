package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/canary/recorder"
	"mercator-hq/promptcanary/pkg/cli"
	"mercator-hq/promptcanary/pkg/config"
	"mercator-hq/promptcanary/pkg/monitor"
	"mercator-hq/promptcanary/pkg/notify"
	"mercator-hq/promptcanary/pkg/scoring"
	"mercator-hq/promptcanary/pkg/server"
	"mercator-hq/promptcanary/pkg/telemetry/health"
	"mercator-hq/promptcanary/pkg/telemetry/logging"
	"mercator-hq/promptcanary/pkg/telemetry/metrics"
	"mercator-hq/promptcanary/pkg/telemetry/tracing"
)

// healthCheckTimeout bounds a single readiness check.
const healthCheckTimeout = 2 * time.Second

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the promptcanary server",
	Long: `Start the canary controller and its HTTP API.

Stored releases, versions and evaluations are restored from the configured
storage before the listener opens. When --config is set the canary section of
the file is reloaded on change.

Examples:
  # Start with defaults
  promptcanary run

  # Start with a config file
  promptcanary run --config /etc/promptcanary/config.yaml

  # Override listen address
  promptcanary run --listen 0.0.0.0:8080

  # Validate config without starting the server
  promptcanary run --dry-run`,
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
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.Setup(loggingConfig(&cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(out, cfg)

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	store, err := openStorage(&cfg.Storage)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open storage: %w", err))
	}
	defer store.Close()
	fmt.Fprintf(out, "✓ Storage opened (%s)\n", cfg.Storage.Backend)

	// Deferred in reverse: the recorder drains into the store before it closes.
	rec := recorder.NewRecorder(store, recorderConfig(&cfg.Recorder))
	defer rec.Close()

	webhook := notify.NewWebhook(notifyConfig(&cfg.Notify))
	defer webhook.Wait()

	var (
		collector *metrics.Collector
		observer  canary.Observer
	)
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
		collector.RegisterRecorderStats(rec.Stats)
		observer = collector
	}

	policy := policyFromConfig(&cfg.Canary)
	ctrl, err := canary.NewController(canary.Options{
		Rand:     randSource(&cfg.Canary),
		Policy:   &policy,
		Weights:  cfg.Canary.Weights,
		Audit:    rec,
		Observer: observer,
		Notifier: webhook,
		Logger:   logger.With("component", "canary.controller"),
	})
	if err != nil {
		return cli.NewConfigError("canary", err.Error())
	}

	if err := restoreController(ctx, ctrl, store, logger); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintf(out, "✓ Controller ready (%d releases)\n", len(ctrl.ListReleases()))

	sched := monitor.NewScheduler(ctrl, store, monitorConfig(&cfg.Monitor))
	if err := sched.Start(ctx); err != nil {
		return cli.NewConfigError("monitor", err.Error())
	}
	defer sched.Stop()

	checker := health.New(healthCheckTimeout)
	checker.RegisterCheck("storage", health.PingCheck(store))
	if cfg.Monitor.CheckEnabled() {
		checker.RegisterCheck("monitor", health.RunningCheck(sched.IsRunning))
	}

	deps := server.Deps{
		Controller:  ctrl,
		Pool:        scoring.NewPool(poolConfig(&cfg.Scoring)),
		Scorers:     scorers(&cfg.Scoring),
		Health:      checker,
		Version:     versionInfo(),
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Logger:      logger.With("component", "server"),
	}
	if tracer.Enabled() {
		deps.Tracer = tracer
	}
	srv := server.NewServer(&cfg.Server, deps)

	if cfgFile != "" {
		startConfigWatcher(ctx, ctrl, logger)
	}

	scheme := "http"
	if cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	fmt.Fprintf(out, "✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: %s://%s/health\n", scheme, cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	if cfg.Server.Auth.Enabled() {
		fmt.Fprintf(out, "✓ API keys required (%d configured)\n", len(cfg.Server.Auth.Keys))
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// startConfigWatcher reloads the canary section of --config into ctrl until
// ctx is cancelled. Reloads that fail validation keep the previous policy.
func startConfigWatcher(ctx context.Context, ctrl *canary.Controller, logger *slog.Logger) {
	watcher, err := config.NewWatcher(cfgFile, config.DefaultDebounceInterval, func(next *config.Config) error {
		if err := applyCanaryConfig(ctrl, &next.Canary); err != nil {
			return err
		}
		config.SetConfig(next)
		logger.Info("canary policy reloaded",
			"min_samples", next.Canary.MinSamples,
			"threshold", next.Canary.Threshold,
		)
		return nil
	})
	if err != nil {
		logger.Warn("config hot reload disabled", "error", err)
		return
	}

	go func() {
		if err := watcher.Watch(ctx); err != nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
}

func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "promptcanary v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(w, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(w, "✓ Configuration loaded")

	slog.Debug("canary policy",
		"min_samples", cfg.Canary.MinSamples,
		"threshold", cfg.Canary.Threshold,
		"auto_rollback", cfg.Canary.AutoRollbackEnabled(),
		"auto_promote", cfg.Canary.AutoPromote,
	)
}
