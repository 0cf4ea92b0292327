package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/collector"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/dispatch"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/prefs"
)

func TestDecodeParams(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr string
	}{
		{
			name: "strings numbers and booleans",
			raw:  `{"t":"event","ec":"ui","ea":"click","ev":3,"ni":true,"sc":null}`,
			want: map[string]string{"t": "event", "ec": "ui", "ea": "click", "ev": "3", "ni": "1"},
		},
		{
			name: "large numbers stay integral",
			raw:  `{"utt":1000000}`,
			want: map[string]string{"utt": "1000000"},
		},
		{
			name:    "nested values are rejected",
			raw:     `{"t":"event","ec":{"x":1}}`,
			wantErr: `parameter "ec"`,
		},
		{
			name:    "not JSON",
			raw:     `t=event`,
			wantErr: "invalid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeParams([]byte(tt.raw))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestClient(t *testing.T) (*client, *collector.Collector, *config.Config) {
	t.Helper()
	return newTestClientWith(t, nil)
}

func newTestClientWith(t *testing.T, modify func(*config.Config)) (*client, *collector.Collector, *config.Config) {
	t.Helper()

	col := collector.New(collector.Options{
		Logger: observability.NewLogger(observability.ErrorLevel, io.Discard),
		Strict: true,
	})
	srv := httptest.NewServer(col.Handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		App: config.AppConfig{Name: "demo", Version: "1.0.0", PropertyID: "UA-12345-1"},
		Dispatch: config.DispatchConfig{
			Settings:       dispatch.Settings{Enabled: true, PostData: true},
			Endpoints:      dispatch.Uniform(srv.URL + collector.PathCollect),
			Retry:          dispatch.RetryConfig{InitialDelay: time.Hour},
			RequestTimeout: 5 * time.Second,
		},
		Prefs: prefs.Config{Type: "memory"},
		Observability: config.ObservabilityConfig{
			LogLevel:       "error",
			MetricsEnabled: true,
		},
		Server: config.ServerConfig{ShutdownTimeout: time.Second},
	}
	if modify != nil {
		modify(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := newClient(t.Context(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(5 * time.Second) })
	return c, col, cfg
}

func TestReadHits(t *testing.T) {
	c, col, _ := newTestClient(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	input := strings.Join([]string{
		`{"t":"screenview","cd":"home"}`,
		``,
		`not json`,
		`{"t":"event","ec":"ui","ea":"click","ev":2}`,
	}, "\n")

	n, err := readHits(t.Context(), strings.NewReader(input), c, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.dispatcher.Flush(ctx))

	hits := col.Hits(10)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.True(t, h.Valid, "hit %s: %+v", h.Type(), h.Messages)
		assert.Equal(t, "UA-12345-1", h.Params["tid"])
	}
}

func TestRunOnce(t *testing.T) {
	c, col, _ := newTestClient(t)

	require.NoError(t, runOnce(t.Context(), c, "timing", []string{"net", "load", "120"}, 5*time.Second))

	hits := col.Hits(1)
	require.Len(t, hits, 1)
	assert.Equal(t, "timing", hits[0].Type())
	assert.Equal(t, "120", hits[0].Params["utt"])

	err := runOnce(t.Context(), c, "bogus", nil, time.Second)
	require.Error(t, err)
}

func TestRunOnceDisabled(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.dispatcher.SetEnabled(false)

	err := runOnce(t.Context(), c, "screenview", []string{"home"}, time.Second)
	require.ErrorIs(t, err, dispatch.ErrDisabled)
}

func TestRouter(t *testing.T) {
	c, _, cfg := newTestClient(t)
	c.tracker.SendScreenView("home")

	router := newRouter(c, cfg)

	t.Run("readiness", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"dispatcher"`)
	})

	t.Run("metrics", func(t *testing.T) {
		assert.Eventually(t, func() bool {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			return rec.Code == http.StatusOK &&
				strings.Contains(rec.Body.String(), "beacon_hits_enqueued_total")
		}, 5*time.Second, 20*time.Millisecond)
	})
}

func TestRouterPrefsCheck(t *testing.T) {
	tests := []struct {
		name  string
		prefs func(t *testing.T) prefs.Config
		want  bool
	}{
		{
			name:  "memory has no check",
			prefs: func(*testing.T) prefs.Config { return prefs.Config{Type: "memory"} },
		},
		{
			name: "sqlite",
			prefs: func(t *testing.T) prefs.Config {
				return prefs.Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "prefs.db")}
			},
			want: true,
		},
		{
			name: "redis",
			prefs: func(t *testing.T) prefs.Config {
				mr := miniredis.RunT(t)
				return prefs.Config{Type: "redis", RedisURL: "redis://" + mr.Addr()}
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := tt.prefs(t)
			c, _, cfg := newTestClientWith(t, func(cfg *config.Config) { cfg.Prefs = pc })

			rec := httptest.NewRecorder()
			newRouter(c, cfg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			var status observability.HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
			dep, ok := status.Dependencies["prefs"]
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, observability.StatusHealthy, dep.Status)
			}
		})
	}
}
