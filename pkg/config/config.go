package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		URL            string        `yaml:"url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		DialTimeout    time.Duration `yaml:"dial_timeout"`
	} `yaml:"server"`

	Fleet struct {
		Agents         int           `yaml:"agents"`
		BatchSize      int           `yaml:"batch_size"`
		BatchDelay     time.Duration `yaml:"batch_delay"`
		StartRate      float64       `yaml:"start_rate"` // agent starts per second, 0 = unlimited
		StatusInterval time.Duration `yaml:"status_interval"`
		Duration       time.Duration `yaml:"duration"` // 0 = run until signalled
	} `yaml:"fleet"`

	Streams struct {
		TelemetryRate float64 `yaml:"telemetry_rate"` // Hz
		HeartbeatRate float64 `yaml:"heartbeat_rate"`
		LogRate       float64 `yaml:"log_rate"`
		CameraFPS     float64 `yaml:"camera_fps"`
	} `yaml:"streams"`

	Session struct {
		RegistrationTimeout time.Duration `yaml:"registration_timeout"`
		ReconnectAttempts   int           `yaml:"reconnect_attempts"`
		ReconnectDelay      time.Duration `yaml:"reconnect_delay"`
	} `yaml:"session"`

	Features struct {
		CameraStreaming    bool `yaml:"camera_streaming"`
		BinaryFrames       bool `yaml:"binary_frames"`
		Compression        bool `yaml:"compression"`
		LatencyMeasurement bool `yaml:"latency_measurement"`
		FrameSkipThreshold int  `yaml:"frame_skip_threshold"`
	} `yaml:"features"`

	Monitoring struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.URL == "" {
		return fmt.Errorf("server.url must not be empty")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be > 0")
	}
	if c.Server.DialTimeout <= 0 {
		return fmt.Errorf("server.dial_timeout must be > 0")
	}

	// Fleet
	if c.Fleet.Agents <= 0 {
		return fmt.Errorf("fleet.agents must be > 0")
	}
	if c.Fleet.BatchSize <= 0 {
		return fmt.Errorf("fleet.batch_size must be > 0")
	}
	if c.Fleet.BatchDelay < 0 {
		return fmt.Errorf("fleet.batch_delay must be >= 0")
	}
	if c.Fleet.StartRate < 0 {
		return fmt.Errorf("fleet.start_rate must be >= 0")
	}
	if c.Fleet.StatusInterval <= 0 {
		return fmt.Errorf("fleet.status_interval must be > 0")
	}
	if c.Fleet.Duration < 0 {
		return fmt.Errorf("fleet.duration must be >= 0")
	}

	// Streams
	if c.Streams.TelemetryRate <= 0 {
		return fmt.Errorf("streams.telemetry_rate must be > 0")
	}
	if c.Streams.HeartbeatRate <= 0 {
		return fmt.Errorf("streams.heartbeat_rate must be > 0")
	}
	if c.Streams.LogRate <= 0 {
		return fmt.Errorf("streams.log_rate must be > 0")
	}
	if c.Streams.CameraFPS <= 0 {
		return fmt.Errorf("streams.camera_fps must be > 0")
	}

	// Session
	if c.Session.RegistrationTimeout <= 0 {
		return fmt.Errorf("session.registration_timeout must be > 0")
	}
	if c.Session.ReconnectAttempts < 0 {
		return fmt.Errorf("session.reconnect_attempts must be >= 0")
	}
	if c.Session.ReconnectDelay <= 0 {
		return fmt.Errorf("session.reconnect_delay must be > 0")
	}

	// Features
	if c.Features.FrameSkipThreshold < 0 {
		return fmt.Errorf("features.frame_skip_threshold must be >= 0")
	}

	// Monitoring
	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return fmt.Errorf("monitoring.address must not be empty when monitoring.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.URL = "http://localhost:5000"
	cfg.Server.RequestTimeout = 10 * time.Second
	cfg.Server.DialTimeout = 10 * time.Second

	cfg.Fleet.Agents = 1
	cfg.Fleet.BatchSize = 10
	cfg.Fleet.BatchDelay = 2 * time.Second
	cfg.Fleet.StartRate = 0
	cfg.Fleet.StatusInterval = 30 * time.Second
	cfg.Fleet.Duration = 0

	cfg.Streams.TelemetryRate = 1
	cfg.Streams.HeartbeatRate = 0.2
	cfg.Streams.LogRate = 0.5
	cfg.Streams.CameraFPS = 10

	cfg.Session.RegistrationTimeout = 10 * time.Second
	cfg.Session.ReconnectAttempts = 5
	cfg.Session.ReconnectDelay = 3 * time.Second

	cfg.Features.CameraStreaming = true
	cfg.Features.BinaryFrames = true
	cfg.Features.Compression = true
	cfg.Features.LatencyMeasurement = true
	cfg.Features.FrameSkipThreshold = 5

	cfg.Monitoring.Enabled = false
	cfg.Monitoring.Address = ":9090"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "console"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.ServiceName = "skyfleet"
	cfg.Tracing.SampleRate = 0.1

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if url := os.Getenv("SKYFLEET_SERVER_URL"); url != "" {
		c.Server.URL = url
	}
	if agents := os.Getenv("SKYFLEET_AGENTS"); agents != "" {
		if n, err := strconv.Atoi(agents); err == nil {
			c.Fleet.Agents = n
		}
	}
	if level := os.Getenv("SKYFLEET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("SKYFLEET_MONITORING_ADDRESS"); addr != "" {
		c.Monitoring.Address = addr
	}
}
