package collector

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/observability"
)

func TestRateLimiter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(&RateLimitConfig{HitsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1}, clock)

	assert.Equal(t, 3, rl.remaining("a"))
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("a"), "token %d", i)
	}
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "keys have separate buckets")

	clock.Advance(30 * time.Second)
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))

	clock.Advance(10 * time.Minute)
	assert.True(t, rl.allow("a"))
	assert.Equal(t, 2, rl.remaining("a"), "refill is capped at capacity")
}

func TestRateLimiterRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		config RateLimitConfig
		want   string
	}{
		{name: "two second refill", config: RateLimitConfig{HitsPerWindow: 30, WindowDuration: time.Minute}, want: "2"},
		{name: "sub-second refill rounds up", config: RateLimitConfig{HitsPerWindow: 600, WindowDuration: time.Minute}, want: "1"},
		{name: "no refill waits a window", config: RateLimitConfig{WindowDuration: time.Minute}, want: "60"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := tt.config
			assert.Equal(t, tt.want, newRateLimiter(&config, clockwork.NewFakeClock()).retryAfter())
		})
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := newRateLimiter(&RateLimitConfig{HitsPerWindow: 1, WindowDuration: time.Minute}, clock)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	rl.startCleanup(ctx)

	require.True(t, rl.allow("idle"))
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(3 * time.Minute)

	assert.Eventually(t, func() bool {
		rl.mu.Lock()
		defer rl.mu.Unlock()
		return len(rl.buckets) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "UA-1-1/abc", rateLimitKey("UA-1-1", "abc", "u1"))
	assert.Equal(t, "UA-1-1/uid:u1", rateLimitKey("UA-1-1", "", "u1"))
}

func TestCollectThrottled(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	c := New(Options{
		Logger:    observability.NewLogger(observability.ErrorLevel, io.Discard),
		Metrics:   metrics,
		Clock:     clockwork.NewFakeClock(),
		RateLimit: &RateLimitConfig{HitsPerWindow: 30, WindowDuration: time.Minute, BurstSize: 0},
	})
	handler := c.Handler()

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, PathCollect, strings.NewReader(validParams().Encode()))
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 30; i++ {
		rec := send()
		require.Equal(t, http.StatusOK, rec.Code, "hit %d", i)
		assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := send()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Len(t, c.Hits(0), 30, "throttled hits are not recorded")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ThrottledHitsTotal.WithLabelValues("event")))
}
