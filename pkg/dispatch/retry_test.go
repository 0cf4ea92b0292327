package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRetryPolicy_Defaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})
	assert.Equal(t, DefaultRetryConfig(), p.Config())

	p = NewRetryPolicy(RetryConfig{MaxAttempts: 2, BackoffMultiplier: 0.5})
	assert.Equal(t, 2, p.Config().MaxAttempts)
	assert.Equal(t, 2.0, p.Config().BackoffMultiplier)
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 3})
	err := errors.New("boom")

	assert.False(t, p.ShouldRetry(1, nil))
	assert.True(t, p.ShouldRetry(1, err))
	assert.True(t, p.ShouldRetry(2, err))
	assert.False(t, p.ShouldRetry(3, err))
	assert.False(t, p.ShouldRetry(10, err))
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	})

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.NextRetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}
