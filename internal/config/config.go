package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Ops           OpsConfig           `yaml:"ops"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the order-ingest listener configuration.
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	MaxLineBytes int           `yaml:"max_line_bytes"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// EngineConfig holds batch engine configuration.
type EngineConfig struct {
	IntervalMillis int `yaml:"interval_millis"`
}

// Interval returns the batch tempo as a duration.
func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalMillis) * time.Millisecond
}

// OpsConfig holds the operational HTTP endpoint configuration (metrics and
// health checks).
type OpsConfig struct {
	Port           int  `yaml:"port"`
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// ObservabilityConfig holds logging and tracing configuration.
type ObservabilityConfig struct {
	ServiceName    string `yaml:"service_name"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Load builds the configuration from defaults, an optional YAML file named
// by FBA_CONFIG_FILE, and environment variable overrides, in that order of
// precedence (env wins).
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("FBA_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "0.0.0.0:7777",
			MaxLineBytes: 256,
			DrainTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			IntervalMillis: 100,
		},
		Ops: OpsConfig{
			Port:           9090,
			MetricsEnabled: true,
		},
		Observability: ObservabilityConfig{
			ServiceName:    "frequent-batch-auction",
			LogLevel:       "info",
			LogFormat:      "json",
			TracingEnabled: false,
			JaegerEndpoint: "http://localhost:14268/api/traces",
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("FBA_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.MaxLineBytes = getIntEnv("FBA_MAX_LINE_BYTES", c.Server.MaxLineBytes)
	c.Server.DrainTimeout = getDurationEnv("FBA_DRAIN_TIMEOUT", c.Server.DrainTimeout)
	c.Engine.IntervalMillis = getIntEnv("FBA_INTERVAL_MILLIS", c.Engine.IntervalMillis)
	c.Ops.Port = getIntEnv("FBA_OPS_PORT", c.Ops.Port)
	c.Ops.MetricsEnabled = getBoolEnv("FBA_METRICS_ENABLED", c.Ops.MetricsEnabled)
	c.Observability.ServiceName = getEnv("FBA_SERVICE_NAME", c.Observability.ServiceName)
	c.Observability.LogLevel = getEnv("FBA_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("FBA_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.TracingEnabled = getBoolEnv("FBA_TRACING_ENABLED", c.Observability.TracingEnabled)
	c.Observability.JaegerEndpoint = getEnv("FBA_JAEGER_ENDPOINT", c.Observability.JaegerEndpoint)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Engine.IntervalMillis <= 0 {
		return fmt.Errorf("invalid batch interval: %d ms", c.Engine.IntervalMillis)
	}
	if c.Server.MaxLineBytes <= 0 {
		return fmt.Errorf("invalid max line size: %d", c.Server.MaxLineBytes)
	}
	if c.Ops.Port <= 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("invalid ops port: %d", c.Ops.Port)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
