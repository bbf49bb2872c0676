package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skyfleet/internal/fleet"
	"skyfleet/internal/infrastructure/monitoring"
	"skyfleet/pkg/config"
	"skyfleet/pkg/logger"
	"skyfleet/pkg/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a fleet of simulated drone agents",
	Long: "run launches the configured number of agents in batches, streams " +
		"telemetry and camera data until the duration elapses or the process " +
		"is interrupted, then prints the fleet latency report.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer zapLogger.Sync()
		log := zapLogger.Sugar()

		tp, err := tracing.Init(tracing.Config{
			Enabled:     cfg.Tracing.Enabled,
			ServiceName: cfg.Tracing.ServiceName,
			JaegerURL:   cfg.Tracing.JaegerURL,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Warnw("tracing shutdown failed", "error", err)
			}
		}()

		metrics := monitoring.NewPrometheusCollector()
		orch := fleet.New(cfg, log, metrics)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if cfg.Fleet.Duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Fleet.Duration)
			defer cancel()
		}

		var status *monitoring.StatusServer
		if cfg.Monitoring.Enabled {
			status = monitoring.NewStatusServer(cfg.Monitoring.Address, orch, log)
			go func() {
				if err := status.Start(); err != nil {
					log.Errorw("status server failed", "error", err)
				}
			}()
		}

		log.Infow("skyfleet starting",
			"server", cfg.Server.URL,
			"agents", cfg.Fleet.Agents,
			"duration", cfg.Fleet.Duration)

		if err := orch.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		go orch.Monitor(ctx)

		<-ctx.Done()
		log.Infow("run finished", "reason", ctx.Err())

		orch.Shutdown()

		if status != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := status.Shutdown(shutdownCtx); err != nil {
				log.Warnw("status server shutdown failed", "error", err)
			}
			cancel()
		}

		orch.PrintReport(os.Stdout)

		if flagSamplesOut != "" {
			if err := orch.ExportSamples(flagSamplesOut); err != nil {
				return err
			}
		}
		return nil
	},
}

// applyFlagOverrides layers explicitly-set CLI flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("server") {
		cfg.Server.URL = flagServer
	}
	if cmd.Flags().Changed("agents") {
		cfg.Fleet.Agents = flagAgents
	}
	if cmd.Flags().Changed("duration") {
		cfg.Fleet.Duration = flagDuration
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = flagLogLevel
	}
	if cmd.Flags().Changed("camera") {
		cfg.Features.CameraStreaming = flagCamera
	}
	if cmd.Flags().Changed("binary-frames") {
		cfg.Features.BinaryFrames = flagBinaryFrames
	}
	if cmd.Flags().Changed("compression") {
		cfg.Features.Compression = flagCompression
	}
	if cmd.Flags().Changed("monitor-addr") {
		cfg.Monitoring.Enabled = true
		cfg.Monitoring.Address = flagMonitorAddr
	}
}
