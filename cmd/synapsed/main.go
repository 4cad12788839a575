// Package main runs synapsed, the synapse device server for Blackrock
// Cereplex acquisition hubs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sciencecorp/synapse-cereplex-driver/api"
	"github.com/sciencecorp/synapse-cereplex-driver/config"
	"github.com/sciencecorp/synapse-cereplex-driver/device"
	"github.com/sciencecorp/synapse-cereplex-driver/driver/sim"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/natsclient"
	"github.com/sciencecorp/synapse-cereplex-driver/node"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/retry"
	"github.com/sciencecorp/synapse-cereplex-driver/relay"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "synapsed"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		return err
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting synapsed",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"device", cfg.Device.Name,
		"serial", cfg.Device.Serial)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, logger)
}

// serve wires the daemon and blocks until ctx ends.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	drv := sim.New(cfg.SimDriver())
	defer drv.Close()

	prov := transport.NewProvisioner(cfg.Transport(),
		transport.WithLogger(logger),
		transport.WithMetrics(registry))

	deps := device.Deps{
		Provisioner: prov,
		Driver:      drv,
		Stimulator:  node.LogStimulator{Logger: logger},
		Metrics:     registry.CoreMetrics(),
		Logger:      logger,
	}

	if cfg.NATS.Enabled() {
		tap, stop, err := startRelay(ctx, cfg, registry, monitor, logger)
		if err != nil {
			return err
		}
		defer stop()
		deps.Tap = tap
	}

	ctrl, err := device.NewController(device.Identity{
		Name:            cfg.Device.Name,
		Serial:          cfg.Device.Serial,
		FirmwareVersion: cfg.Device.FirmwareVersion,
	}, deps)
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			logger.Warn("Controller close failed", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		metrics.SetHealthHandler(healthHandler(ctrl, monitor))
		go func() {
			if err := metrics.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer metrics.Stop()
		logger.Info("Metrics server started", "address", metrics.Address())
	}

	srv, err := api.NewServer(cfg.Control.Listen, ctrl,
		api.WithLogger(logger),
		api.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create control plane: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start control plane: %w", err)
	}

	logger.Info("synapsed ready", "control", srv.Addr())
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Control plane shutdown failed", "error", err)
	}

	logger.Info("synapsed shutdown complete")
	return nil
}

// startRelay connects to NATS and starts the tap relay. The returned stop
// drains the relay and closes the connection.
func startRelay(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
	logger *slog.Logger,
) (*relay.Relay, func(), error) {
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName+"-"+cfg.Device.Serial),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.NATS.ConnectTimeout)
	defer cancel()
	if err := retry.Do(connCtx, retry.Quick(), func() error { return client.Connect(connCtx) }); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	monitor.Update("nats", client.Health())
	client.OnHealthChange(func(bool) { monitor.Update("nats", client.Health()) })

	r, err := relay.New(relay.Config{
		Workers:   cfg.NATS.RelayWorkers,
		QueueSize: cfg.NATS.RelayQueueSize,
	}, relay.Deps{
		Publisher: client,
		Serial:    cfg.Device.Serial,
		Logger:    logger,
		Registry:  registry,
	})
	if err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("create relay: %w", err)
	}
	if err := r.Start(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("start relay: %w", err)
	}

	stop := func() {
		if err := r.Stop(5 * time.Second); err != nil {
			logger.Warn("Relay drain failed", "error", err)
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}
	return r, stop, nil
}

// healthHandler reports the device together with the subsystems in monitor.
func healthHandler(ctrl *device.Controller, monitor *health.Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := monitor.AggregateHealth(appName, ctrl.Health())
		w.Header().Set("Content-Type", "application/json")
		if st.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(st)
	})
}
