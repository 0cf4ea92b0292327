package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/prefs"
)

// Config holds all client configuration
type Config struct {
	App           AppConfig           `yaml:"app"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Prefs         prefs.Config        `yaml:"prefs"`
	Observability ObservabilityConfig `yaml:"observability"`
	Server        ServerConfig        `yaml:"server"`
}

// AppConfig identifies the host application
type AppConfig struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	PropertyID string `yaml:"property_id"`
}

// DispatchConfig holds delivery settings
type DispatchConfig struct {
	Settings       dispatch.Settings    `yaml:",inline"`
	Endpoints      dispatch.Endpoints   `yaml:"endpoints"`
	Retry          dispatch.RetryConfig `yaml:"retry"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
	MaxQueueSize   int                  `yaml:"max_queue_size"`

	// ConnectivityProbe is a host:port dialed to decide whether the network is up.
	// Empty disables probing.
	ConnectivityProbe    string        `yaml:"connectivity_probe"`
	ConnectivityInterval time.Duration `yaml:"connectivity_interval"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Level returns the parsed log level, InfoLevel when unparseable.
func (o ObservabilityConfig) Level() observability.LogLevel {
	level, _ := observability.ParseLogLevel(o.LogLevel)
	return level
}

// ServerConfig holds the listener used by the daemon and the collector
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoadConfig loads configuration from BEACON_* environment variables
func LoadConfig() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile reads a YAML file over the environment configuration. Keys missing from the
// file keep their environment or default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the environment configuration.
func Parse(data []byte) (*Config, error) {
	cfg := fromEnv()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func fromEnv() *Config {
	retry := dispatch.DefaultRetryConfig()
	defaults := dispatch.DefaultSettings()

	return &Config{
		App: AppConfig{
			Name:       getEnv("BEACON_APP_NAME", ""),
			Version:    getEnv("BEACON_APP_VERSION", ""),
			PropertyID: getEnv("BEACON_PROPERTY_ID", ""),
		},
		Dispatch: DispatchConfig{
			Settings: dispatch.Settings{
				Enabled:               getEnvBool("BEACON_ENABLED", defaults.Enabled),
				Secure:                getEnvBool("BEACON_SECURE", defaults.Secure),
				Debug:                 getEnvBool("BEACON_DEBUG", defaults.Debug),
				PostData:              getEnvBool("BEACON_POST_DATA", defaults.PostData),
				BustCache:             getEnvBool("BEACON_BUST_CACHE", defaults.BustCache),
				AutoTrackConnectivity: getEnvBool("BEACON_AUTO_TRACK_CONNECTIVITY", defaults.AutoTrackConnectivity),
			},
			Endpoints: endpointsFromEnv(),
			Retry: dispatch.RetryConfig{
				MaxAttempts:       getEnvInt("BEACON_RETRY_MAX_ATTEMPTS", retry.MaxAttempts),
				InitialDelay:      getEnvDuration("BEACON_RETRY_INITIAL_DELAY", retry.InitialDelay),
				MaxDelay:          getEnvDuration("BEACON_RETRY_MAX_DELAY", retry.MaxDelay),
				BackoffMultiplier: retry.BackoffMultiplier,
			},
			RequestTimeout:       getEnvDuration("BEACON_REQUEST_TIMEOUT", 10*time.Second),
			MaxQueueSize:         getEnvInt("BEACON_MAX_QUEUE_SIZE", 0),
			ConnectivityProbe:    getEnv("BEACON_CONNECTIVITY_PROBE", ""),
			ConnectivityInterval: getEnvDuration("BEACON_CONNECTIVITY_INTERVAL", 30*time.Second),
		},
		Prefs: prefs.Config{
			Type:     getEnv("BEACON_PREFS_TYPE", "file"),
			Path:     getEnv("BEACON_PREFS_PATH", ""),
			DSN:      getEnv("BEACON_PREFS_DSN", ""),
			RedisURL: getEnv("BEACON_REDIS_URL", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("BEACON_LOG_LEVEL", "info"),
			MetricsEnabled: getEnvBool("BEACON_METRICS_ENABLED", true),
			OTel: observability.OTelConfig{
				Enabled:        getEnvBool("BEACON_OTEL_ENABLED", false),
				Endpoint:       getEnv("BEACON_OTEL_ENDPOINT", "localhost:4317"),
				ServiceName:    getEnv("BEACON_OTEL_SERVICE_NAME", observability.DefaultServiceName),
				ServiceVersion: getEnv("BEACON_OTEL_SERVICE_VERSION", ""),
				Insecure:       getEnvBool("BEACON_OTEL_INSECURE", true),
				SampleRatio:    getEnvFloat("BEACON_OTEL_SAMPLE_RATIO", 1),
			},
		},
		Server: ServerConfig{
			Addr:            getEnv("BEACON_ADDR", "127.0.0.1:9464"),
			ShutdownTimeout: getEnvDuration("BEACON_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}
}

// endpointsFromEnv honors BEACON_ENDPOINT, which points all four endpoints at one URL.
func endpointsFromEnv() dispatch.Endpoints {
	if url := getEnv("BEACON_ENDPOINT", ""); url != "" {
		return dispatch.Uniform(url)
	}
	return dispatch.DefaultEndpoints()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.App.PropertyID != "" && strings.TrimSpace(c.App.PropertyID) != c.App.PropertyID {
		return fmt.Errorf("property ID must not contain surrounding whitespace")
	}

	if c.Dispatch.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.Dispatch.MaxQueueSize < 0 {
		return fmt.Errorf("max queue size must not be negative")
	}
	if c.Dispatch.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative")
	}
	if c.Dispatch.Retry.MaxDelay > 0 && c.Dispatch.Retry.InitialDelay > c.Dispatch.Retry.MaxDelay {
		return fmt.Errorf("retry initial delay %s exceeds max delay %s",
			c.Dispatch.Retry.InitialDelay, c.Dispatch.Retry.MaxDelay)
	}
	if probe := c.Dispatch.ConnectivityProbe; probe != "" {
		if _, _, err := net.SplitHostPort(probe); err != nil {
			return fmt.Errorf("invalid connectivity probe %q: %w", probe, err)
		}
	}

	switch c.Prefs.Type {
	case "", "memory", "file":
	case "sqlite":
	case "postgres":
		if c.Prefs.DSN == "" {
			return fmt.Errorf("DSN is required for postgres preferences")
		}
	case "redis":
		if c.Prefs.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis preferences")
		}
	default:
		return fmt.Errorf("invalid prefs type: %s (must be memory, file, sqlite, postgres, or redis)", c.Prefs.Type)
	}

	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.Observability.OTel.Enabled && c.Observability.OTel.Endpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// DispatchOptions maps the configuration onto dispatcher options. Collaborators such as
// the platform provider, preference store and logger are left for the caller.
func (c *Config) DispatchOptions() dispatch.Options {
	settings := c.Dispatch.Settings
	return dispatch.Options{
		Endpoints:      c.Dispatch.Endpoints,
		Retry:          c.Dispatch.Retry,
		Settings:       &settings,
		AppName:        c.App.Name,
		AppVersion:     c.App.Version,
		MaxQueueSize:   c.Dispatch.MaxQueueSize,
		RequestTimeout: c.Dispatch.RequestTimeout,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
