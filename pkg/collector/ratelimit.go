package collector

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// RateLimitConfig throttles hits per property and client.
type RateLimitConfig struct {
	// HitsPerWindow is the sustained number of hits allowed in WindowDuration
	HitsPerWindow int `json:"hits_per_window"`
	// WindowDuration is the refill window
	WindowDuration time.Duration `json:"window_duration"`
	// BurstSize allows temporary bursts above the rate
	BurstSize int `json:"burst_size"`
}

// DefaultRateLimitConfig allows a burst of 60 hits, refilled at one hit every two seconds.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		HitsPerWindow:  30,
		WindowDuration: time.Minute,
		BurstSize:      30,
	}
}

// rateLimiter is a token bucket per key.
type rateLimiter struct {
	config *RateLimitConfig
	clock  clockwork.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens     int
	lastUpdate time.Time
}

func newRateLimiter(config *RateLimitConfig, clock clockwork.Clock) *rateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = time.Minute
	}
	return &rateLimiter{
		config:  config,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

func (rl *rateLimiter) capacity() int {
	return rl.config.HitsPerWindow + rl.config.BurstSize
}

// allow takes a token for key and reports whether one was available.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
		rl.buckets[key] = b
	}

	elapsed := now.Sub(b.lastUpdate)
	refill := int(elapsed.Seconds() * float64(rl.config.HitsPerWindow) / rl.config.WindowDuration.Seconds())
	if refill > 0 {
		b.tokens = min(b.tokens+refill, rl.capacity())
		b.lastUpdate = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// remaining returns the tokens left for key.
func (rl *rateLimiter) remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return rl.capacity()
	}
	return b.tokens
}

// retryAfter is the refill interval of a single token, in whole seconds.
func (rl *rateLimiter) retryAfter() string {
	if rl.config.HitsPerWindow <= 0 {
		return strconv.Itoa(int(rl.config.WindowDuration.Seconds()))
	}
	perToken := rl.config.WindowDuration / time.Duration(rl.config.HitsPerWindow)
	seconds := int((perToken + time.Second - 1) / time.Second)
	return strconv.Itoa(max(seconds, 1))
}

// cleanup removes buckets idle for two windows.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.WindowDuration*2 {
			delete(rl.buckets, key)
		}
	}
}

// startCleanup runs cleanup every window until ctx is done.
func (rl *rateLimiter) startCleanup(ctx context.Context) {
	ticker := rl.clock.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				rl.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// rateLimitKey buckets a hit by property and client.
func rateLimitKey(tid, cid, uid string) string {
	client := cid
	if client == "" {
		client = "uid:" + uid
	}
	return tid + "/" + client
}
