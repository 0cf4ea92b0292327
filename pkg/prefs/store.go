package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// Group is the section all client preferences are stored under.
const Group = "GoogleAnalytics"

// Preference keys
const (
	KeyAppOptOut         = "AppOptOut"
	KeyAnonymousClientID = "AnonymousClientId"
)

// ErrUnknownBackend is returned by Open for an unsupported store type.
var ErrUnknownBackend = errors.New("unknown preference backend")

// Store persists small string preferences.
type Store interface {
	// Load returns the stored value for key, or def if nothing is stored.
	Load(ctx context.Context, key, def string) (string, error)
	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key, value string) error
}

// LoadBool loads a boolean preference. Unparseable values yield def.
func LoadBool(ctx context.Context, s Store, key string, def bool) (bool, error) {
	raw, err := s.Load(ctx, key, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// SaveBool stores a boolean preference.
func SaveBool(ctx context.Context, s Store, key string, value bool) error {
	return s.Save(ctx, key, strconv.FormatBool(value))
}

// Memory is an in-process store. Useful for tests and for hosts that do not want any
// persistence.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Load implements Store
func (m *Memory) Load(ctx context.Context, key, def string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

// Save implements Store
func (m *Memory) Save(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Config selects and configures a store backend.
type Config struct {
	// Type is one of memory, file, sqlite, postgres, redis
	Type string `yaml:"type"`
	// Path is the file path for the file backend
	Path string `yaml:"path"`
	// DSN is the data source name for the sqlite and postgres backends
	DSN string `yaml:"dsn"`
	// RedisURL is the connection URL for the redis backend
	RedisURL string `yaml:"redis_url"`
}

// Open creates the store described by cfg. The returned close function releases any
// connection held by the backend and is never nil.
func Open(ctx context.Context, cfg Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "", "memory":
		return NewMemory(), noop, nil
	case "file":
		path := cfg.Path
		if path == "" {
			p, err := DefaultFilePath()
			if err != nil {
				return nil, noop, err
			}
			path = p
		}
		return NewFile(path), noop, nil
	case "sqlite", "postgres":
		store, err := OpenSQL(ctx, cfg.Type, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case "redis":
		store, err := NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Type)
	}
}
