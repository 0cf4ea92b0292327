package prefs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stores preferences in one hash per group. Handy when several processes on
// different hosts must share a client ID.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to the Redis server at url and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	if url == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisFromClient(client), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client, key: "beacon:prefs:" + Group}
}

// Load implements Store
func (r *Redis) Load(ctx context.Context, key, def string) (string, error) {
	v, err := r.client.HGet(ctx, r.key, key).Result()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis hget failed: %w", err)
	}
	return v, nil
}

// Save implements Store
func (r *Redis) Save(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.key, key, value).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// Client exposes the underlying client for health checks.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
