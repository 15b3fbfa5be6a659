package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/logx"
	"github.com/markus-lassfolk/gpsselect/pkg/metrics"
	"github.com/markus-lassfolk/gpsselect/pkg/monitoring"
	"github.com/markus-lassfolk/gpsselect/pkg/mqtt"
	"github.com/markus-lassfolk/gpsselect/pkg/pidfile"
	"github.com/markus-lassfolk/gpsselect/pkg/telem"
	"github.com/markus-lassfolk/gpsselect/pkg/uci"
)

var (
	configPath = flag.String("config", uci.DefaultConfigPath, "Path to UCI or YAML configuration file")
	pidPath    = flag.String("pid-file", "", "Override PID file path")
	logLevel   = flag.String("log-level", "", "Override log level (debug|info|warn|error|trace)")
	version    = flag.Bool("version", false, "Show version information")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (equivalent to trace level)")
	force      = flag.Bool("force", false, "Force start by removing stale PID file")
)

const (
	AppName    = "gpsselectd"
	AppVersion = "1.0.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := uci.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *verbose {
		cfg.LogLevel = "trace"
	}
	if *pidPath != "" {
		cfg.PIDFile = *pidPath
	}

	logger := logx.NewLogger(cfg.LogLevel, AppName)

	pidFile := pidfile.New(cfg.PIDFile)
	if err := claimPIDFile(pidFile, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, pidfile.ErrAlreadyRunning) {
			fmt.Fprintf(os.Stderr, "Use --force to override, or stop the existing instance first\n")
		}
		os.Exit(1)
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Error("Failed to remove PID file", "error", err)
		}
	}()

	logger.Info("Starting GPS source selector", "version", AppVersion, "pid", os.Getpid(), "config", *configPath)
	logger.Info("Configuration loaded", map[string]interface{}{
		"rutos_accuracy_m":    cfg.GPS.RUTOSAccuracyM,
		"starlink_accuracy_m": cfg.GPS.StarlinkAccuracyM,
		"collection_interval": cfg.GPS.DataCollectionInterval.String(),
		"history_size":        cfg.HistorySize,
		"mqtt_enabled":        cfg.MQTT.Enabled,
		"metrics_enabled":     cfg.Metrics.Enabled,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("GPS source selector failed", "error", err)
		os.Exit(1)
	}
}

func claimPIDFile(pidFile *pidfile.PIDFile, logger *logx.Logger) error {
	running, existingPID, err := pidFile.CheckRunning()
	if err != nil {
		return fmt.Errorf("failed to check for running instance: %w", err)
	}

	if running {
		if !*force {
			return fmt.Errorf("%w with PID %d (%s)", pidfile.ErrAlreadyRunning, existingPID, pidFile.Path())
		}
		logger.Warn("Another instance is running, but force flag specified", "existing_pid", existingPID)
		if err := pidFile.ForceRemove(); err != nil {
			return fmt.Errorf("failed to remove existing PID file: %w", err)
		}
	}

	return pidFile.Create()
}

func run(cfg *uci.Config, logger *logx.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	history, err := telem.NewHistory(cfg.HistorySize)
	if err != nil {
		return fmt.Errorf("failed to create fix history: %w", err)
	}

	collectors := metrics.New()

	mqttClient := mqtt.NewClient(cfg.MQTT, logger.With("subsystem", "mqtt"))
	mqttClient.OnDroppedFix(collectors.DroppedFix)
	if cfg.MQTT.Enabled {
		if err := mqttClient.Connect(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer mqttClient.Disconnect()
	}

	service := monitoring.NewService(cfg.GPS, cfg.StaleAfter, history, mqttClient,
		logger.With("subsystem", "monitoring"), monitoring.WithRecorder(collectors))

	if cfg.MQTT.Enabled {
		err := mqttClient.SubscribeFixes(func(source gps.Source, fix gps.Fix) {
			if err := service.Submit(ctx, source, fix); err != nil && ctx.Err() == nil {
				logger.Warn("Fix not accepted", "source", source, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to fix topics: %w", err)
		}
	} else {
		logger.Warn("MQTT disabled, no fixes will be received")
	}

	var link monitoring.Link
	if cfg.MQTT.Enabled {
		link = mqttClient
	}

	if cfg.Metrics.Enabled {
		server := startMetricsServer(cfg.Metrics.Listen, collectors, service.HealthHandler(link), logger)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	if err := service.Run(ctx); err != nil {
		return err
	}

	logger.Info("Received shutdown signal, stopping")
	return nil
}

func startMetricsServer(listen string, collectors *metrics.Metrics, health http.Handler, logger *logx.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())
	mux.Handle("/health", health)

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", "listen", listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return server
}
