package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "skyfleet",
	Short: "Synthetic drone fleet load generator",
	Long: "skyfleet simulates a fleet of drone agents against a ground control " +
		"server: session lifecycle, telemetry and camera streams, command " +
		"handling and round-trip latency measurement.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	flagConfig     string
	flagServer     string
	flagAgents     int
	flagDuration   time.Duration
	flagSamplesOut string
	flagLogLevel   string

	flagCamera       bool
	flagBinaryFrames bool
	flagCompression  bool
	flagMonitorAddr  string
)

func init() {
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "configs/config.yaml", "path to configuration YAML")
	runCmd.Flags().StringVar(&flagServer, "server", "", "ground control server URL (overrides config)")
	runCmd.Flags().IntVar(&flagAgents, "agents", 0, "number of agents to run (overrides config)")
	runCmd.Flags().DurationVar(&flagDuration, "duration", 0, "run duration, 0 = until interrupted (overrides config)")
	runCmd.Flags().StringVar(&flagSamplesOut, "samples-out", "", "write raw latency samples to this JSON file on exit")
	runCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	runCmd.Flags().BoolVar(&flagCamera, "camera", true, "enable camera streaming")
	runCmd.Flags().BoolVar(&flagBinaryFrames, "binary-frames", true, "send camera frames as binary messages")
	runCmd.Flags().BoolVar(&flagCompression, "compression", true, "gzip camera frame payloads")
	runCmd.Flags().StringVar(&flagMonitorAddr, "monitor-addr", "", "status/metrics listen address (overrides config)")

	rootCmd.AddCommand(runCmd)
}
