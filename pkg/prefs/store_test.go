package prefs

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the round-trip contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	v, err := s.Load(ctx, KeyAnonymousClientID, "NoKey")
	require.NoError(t, err)
	assert.Equal(t, "NoKey", v)

	require.NoError(t, s.Save(ctx, KeyAnonymousClientID, "123.456"))
	v, err = s.Load(ctx, KeyAnonymousClientID, "NoKey")
	require.NoError(t, err)
	assert.Equal(t, "123.456", v)

	require.NoError(t, s.Save(ctx, KeyAnonymousClientID, "789.000"))
	v, err = s.Load(ctx, KeyAnonymousClientID, "NoKey")
	require.NoError(t, err)
	assert.Equal(t, "789.000", v)

	optOut, err := LoadBool(ctx, s, KeyAppOptOut, false)
	require.NoError(t, err)
	assert.False(t, optOut)

	require.NoError(t, SaveBool(ctx, s, KeyAppOptOut, true))
	optOut, err = LoadBool(ctx, s, KeyAppOptOut, false)
	require.NoError(t, err)
	assert.True(t, optOut)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestLoadBool_Unparseable(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, KeyAppOptOut, "maybe"))

	v, err := LoadBool(ctx, s, KeyAppOptOut, true)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")
	exerciseStore(t, NewFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GoogleAnalytics:")
	assert.Contains(t, string(data), "AnonymousClientId: \"789.000\"")

	t.Run("reopen sees persisted values", func(t *testing.T) {
		v, err := NewFile(path).Load(context.Background(), KeyAnonymousClientID, "")
		require.NoError(t, err)
		assert.Equal(t, "789.000", v)
	})
}

func TestFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("::: not yaml [\n"), 0o644))

	v, err := NewFile(path).Load(context.Background(), KeyAppOptOut, "false")
	assert.Error(t, err)
	assert.Equal(t, "false", v)
}

func TestSQL_SQLite(t *testing.T) {
	store, err := OpenSQL(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

func TestSQL_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS beacon_preferences").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQL(context.Background(), db)
	require.NoError(t, err)

	selectQuery := regexp.QuoteMeta(`SELECT pref_value FROM beacon_preferences WHERE group_name = $1 AND pref_key = $2`)

	t.Run("missing row yields default", func(t *testing.T) {
		mock.ExpectQuery(selectQuery).
			WithArgs(Group, KeyAppOptOut).
			WillReturnError(sql.ErrNoRows)

		v, err := store.Load(context.Background(), KeyAppOptOut, "false")
		require.NoError(t, err)
		assert.Equal(t, "false", v)
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		boom := errors.New("connection reset")
		mock.ExpectQuery(selectQuery).
			WithArgs(Group, KeyAppOptOut).
			WillReturnError(boom)

		v, err := store.Load(context.Background(), KeyAppOptOut, "false")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "false", v)
	})

	t.Run("save upserts", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO beacon_preferences").
			WithArgs(Group, KeyAppOptOut, "true", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.Save(context.Background(), KeyAppOptOut, "true"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQL_CreateTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("read-only"))

	_, err = NewSQL(context.Background(), db)
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
	assert.Equal(t, "789.000", mr.HGet("beacon:prefs:GoogleAnalytics", KeyAnonymousClientID))
}

func TestRedis_InvalidURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "invalid://url")
	assert.Error(t, err)

	_, err = NewRedis(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory default", func(t *testing.T) {
		s, closeFn, err := Open(ctx, Config{})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &Memory{}, s)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "p.yaml")
		s, closeFn, err := Open(ctx, Config{Type: "file", Path: path})
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &File{}, s)
		assert.Equal(t, path, s.(*File).Path())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, closeFn, err := Open(ctx, Config{Type: "sqlite", DSN: ":memory:"})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &SQL{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, closeFn, err := Open(ctx, Config{Type: "redis", RedisURL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &Redis{}, s)
	})

	t.Run("unknown", func(t *testing.T) {
		_, closeFn, err := Open(ctx, Config{Type: "etcd"})
		assert.ErrorIs(t, err, ErrUnknownBackend)
		assert.NotNil(t, closeFn)
	})
}
