package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS beacon_preferences (
		group_name TEXT NOT NULL,
		pref_key   TEXT NOT NULL,
		pref_value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (group_name, pref_key)
	)
`

// SQL stores preferences in a relational table. Both sqlite and postgres accept the
// numbered placeholders and the ON CONFLICT upsert used here.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens a database with the given driver ("sqlite" or "postgres") and ensures
// the preferences table exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	driverName := driver
	if driver == "sqlite" {
		driverName = "sqlite3"
		if dsn == "" {
			dsn = "file:beacon-preferences.db"
		}
	}
	if dsn == "" {
		return nil, fmt.Errorf("DSN is required for %s preferences", driver)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if driverName == "sqlite3" {
		// A single connection keeps :memory: databases consistent across queries.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	store, err := NewSQL(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQL wraps an existing database handle and ensures the preferences table exists.
func NewSQL(ctx context.Context, db *sql.DB) (*SQL, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}
	return &SQL{db: db}, nil
}

// Load implements Store
func (s *SQL) Load(ctx context.Context, key, def string) (string, error) {
	query := `SELECT pref_value FROM beacon_preferences WHERE group_name = $1 AND pref_key = $2`

	var value string
	err := s.db.QueryRowContext(ctx, query, Group, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to load preference %s: %w", key, err)
	}
	return value, nil
}

// Save implements Store
func (s *SQL) Save(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO beacon_preferences (group_name, pref_key, pref_value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (group_name, pref_key)
		DO UPDATE SET pref_value = excluded.pref_value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, Group, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// DB exposes the underlying handle for health checks.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}
