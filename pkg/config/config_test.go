package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/prefs"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("BEACON_TEST_STRING", "custom")
	t.Setenv("BEACON_TEST_BOOL", "TRUE")
	t.Setenv("BEACON_TEST_BAD_BOOL", "maybe")
	t.Setenv("BEACON_TEST_INT", "42")
	t.Setenv("BEACON_TEST_BAD_INT", "forty-two")
	t.Setenv("BEACON_TEST_FLOAT", "0.25")
	t.Setenv("BEACON_TEST_DURATION", "1m30s")
	t.Setenv("BEACON_TEST_BAD_DURATION", "soon")

	assert.Equal(t, "custom", getEnv("BEACON_TEST_STRING", "default"))
	assert.Equal(t, "default", getEnv("BEACON_TEST_UNSET", "default"))

	assert.True(t, getEnvBool("BEACON_TEST_BOOL", false))
	assert.True(t, getEnvBool("BEACON_TEST_BAD_BOOL", true))
	assert.False(t, getEnvBool("BEACON_TEST_UNSET", false))

	assert.Equal(t, 42, getEnvInt("BEACON_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("BEACON_TEST_BAD_INT", 1))

	assert.InDelta(t, 0.25, getEnvFloat("BEACON_TEST_FLOAT", 1), 1e-9)

	assert.Equal(t, 90*time.Second, getEnvDuration("BEACON_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("BEACON_TEST_BAD_DURATION", time.Second))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, dispatch.DefaultSettings(), cfg.Dispatch.Settings)
	assert.Equal(t, dispatch.DefaultEndpoints(), cfg.Dispatch.Endpoints)
	assert.Equal(t, dispatch.DefaultRetryConfig().MaxAttempts, cfg.Dispatch.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.RequestTimeout)
	assert.Equal(t, "file", cfg.Prefs.Type)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.Level())
	assert.False(t, cfg.Observability.OTel.Enabled)
	assert.Equal(t, observability.DefaultServiceName, cfg.Observability.OTel.ServiceName)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("BEACON_APP_NAME", "demo")
	t.Setenv("BEACON_APP_VERSION", "1.2.0")
	t.Setenv("BEACON_PROPERTY_ID", "UA-1-1")
	t.Setenv("BEACON_ENABLED", "false")
	t.Setenv("BEACON_DEBUG", "true")
	t.Setenv("BEACON_POST_DATA", "true")
	t.Setenv("BEACON_ENDPOINT", "http://127.0.0.1:8080/collect")
	t.Setenv("BEACON_MAX_QUEUE_SIZE", "50")
	t.Setenv("BEACON_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("BEACON_PREFS_TYPE", "memory")
	t.Setenv("BEACON_LOG_LEVEL", "debug")
	t.Setenv("BEACON_CONNECTIVITY_PROBE", "example.com:443")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "demo", cfg.App.Name)
	assert.Equal(t, "1.2.0", cfg.App.Version)
	assert.Equal(t, "UA-1-1", cfg.App.PropertyID)
	assert.False(t, cfg.Dispatch.Settings.Enabled)
	assert.True(t, cfg.Dispatch.Settings.Debug)
	assert.True(t, cfg.Dispatch.Settings.PostData)
	assert.Equal(t, dispatch.Uniform("http://127.0.0.1:8080/collect"), cfg.Dispatch.Endpoints)
	assert.Equal(t, 50, cfg.Dispatch.MaxQueueSize)
	assert.Equal(t, 7, cfg.Dispatch.Retry.MaxAttempts)
	assert.Equal(t, "memory", cfg.Prefs.Type)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.Level())
	assert.Equal(t, "example.com:443", cfg.Dispatch.ConnectivityProbe)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "non-positive request timeout",
			mutate:  func(c *Config) { c.Dispatch.RequestTimeout = 0 },
			wantErr: "request timeout",
		},
		{
			name:    "negative queue size",
			mutate:  func(c *Config) { c.Dispatch.MaxQueueSize = -1 },
			wantErr: "max queue size",
		},
		{
			name:    "negative retry attempts",
			mutate:  func(c *Config) { c.Dispatch.Retry.MaxAttempts = -1 },
			wantErr: "retry max attempts",
		},
		{
			name: "initial delay above max delay",
			mutate: func(c *Config) {
				c.Dispatch.Retry.InitialDelay = time.Minute
				c.Dispatch.Retry.MaxDelay = time.Second
			},
			wantErr: "exceeds max delay",
		},
		{
			name:    "probe without port",
			mutate:  func(c *Config) { c.Dispatch.ConnectivityProbe = "example.com" },
			wantErr: "invalid connectivity probe",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Prefs = prefsOf("postgres") },
			wantErr: "DSN is required",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Prefs = prefsOf("redis") },
			wantErr: "redis URL is required",
		},
		{
			name:    "unknown prefs type",
			mutate:  func(c *Config) { c.Prefs = prefsOf("etcd") },
			wantErr: "invalid prefs type",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "chatty" },
			wantErr: "unknown log level",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTel.Enabled = true
				c.Observability.OTel.Endpoint = ""
			},
			wantErr: "OpenTelemetry endpoint",
		},
		{
			name:    "property id with whitespace",
			mutate:  func(c *Config) { c.App.PropertyID = " UA-1-1" },
			wantErr: "whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fromEnv()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseOverridesEnv(t *testing.T) {
	t.Setenv("BEACON_APP_NAME", "from-env")
	t.Setenv("BEACON_APP_VERSION", "0.1.0")

	cfg, err := Parse([]byte(`
app:
  name: from-file
dispatch:
  enabled: true
  debug: true
  bust_cache: false
  max_queue_size: 10
  request_timeout: 3s
  endpoints:
    secure: https://collect.example.com/collect
  retry:
    max_attempts: 5
prefs:
  type: memory
observability:
  log_level: warn
`))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.App.Name)
	assert.Equal(t, "0.1.0", cfg.App.Version, "keys absent from the file keep env values")
	assert.True(t, cfg.Dispatch.Settings.Debug)
	assert.False(t, cfg.Dispatch.Settings.BustCache)
	assert.Equal(t, 10, cfg.Dispatch.MaxQueueSize)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.RequestTimeout)
	assert.Equal(t, "https://collect.example.com/collect", cfg.Dispatch.Endpoints.Secure)
	assert.Equal(t, 5, cfg.Dispatch.Retry.MaxAttempts)
	assert.Equal(t, observability.WarnLevel, cfg.Observability.Level())
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("dispatch: [not, a, map]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")

	_, err = Parse([]byte("prefs:\n  type: etcd\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  property_id: UA-9-9\nprefs:\n  type: memory\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "UA-9-9", cfg.App.PropertyID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDispatchOptions(t *testing.T) {
	cfg := fromEnv()
	cfg.App.Name = "demo"
	cfg.App.Version = "2.0"
	cfg.Dispatch.MaxQueueSize = 25
	cfg.Dispatch.Settings.Debug = true

	opts := cfg.DispatchOptions()
	require.NotNil(t, opts.Settings)
	assert.True(t, opts.Settings.Debug)
	assert.Equal(t, "demo", opts.AppName)
	assert.Equal(t, "2.0", opts.AppVersion)
	assert.Equal(t, 25, opts.MaxQueueSize)
	assert.Equal(t, cfg.Dispatch.Endpoints, opts.Endpoints)

	opts.Settings.Debug = false
	assert.True(t, cfg.Dispatch.Settings.Debug, "options must not alias the config")
}

func prefsOf(kind string) prefs.Config {
	return prefs.Config{Type: kind}
}
