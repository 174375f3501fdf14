package store

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

// createTestSQLite opens a fresh database in a temp directory.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRedis starts an in-process redis server.
func createTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(client, "test")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// backends returns one instance of every Store implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	r, _ := createTestRedis(t)
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": createTestSQLite(t),
		"redis":  r,
	}
}
