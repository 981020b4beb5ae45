package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpp11nullptr/vikki/internal/storage"
	"github.com/cpp11nullptr/vikki/internal/storage/storagetest"
)

func openSQLite(t *testing.T, path string) *Store {
	t.Helper()
	s := NewSQLite()
	require.NoError(t, s.Open(context.Background(), map[string]string{"path": path}))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return openSQLite(t, filepath.Join(t.TempDir(), "vikki.db"))
	})
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vikki.db")

	s := NewSQLite()
	require.NoError(t, s.Open(ctx, map[string]string{"path": path}))
	require.NoError(t, s.PrepareEntity(ctx, "memory_usage"))
	require.NoError(t, s.Put(ctx, "memory_usage", 1000, []byte{1, 2}))
	require.NoError(t, s.Close())

	reopened := openSQLite(t, path)
	require.NoError(t, reopened.PrepareEntity(ctx, "memory_usage"))

	records, err := reopened.Get(ctx, "memory_usage", 1000, 1000)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte{1, 2}, records[0].Payload)
}

func TestSQLiteCaseFoldedNamesDoNotShareTable(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, filepath.Join(t.TempDir(), "vikki.db"))

	require.NoError(t, s.PrepareEntity(ctx, "memory"))
	require.NoError(t, s.Put(ctx, "memory", 10, []byte{1}))

	err := s.PrepareEntity(ctx, "Memory")
	assert.ErrorIs(t, err, ErrNameConflict)
	err = s.Put(ctx, "Memory", 20, []byte{2})
	assert.ErrorIs(t, err, ErrNameConflict)

	records, err := s.Get(ctx, "memory", 0, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(10), records[0].Timestamp)

	records, err = s.Get(ctx, "Memory", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteRequiresPath(t *testing.T) {
	err := NewSQLite().Open(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrMissingParam)
}

func TestClosedStore(t *testing.T) {
	s := NewSQLite()
	err := s.Put(context.Background(), "cpu_usage", 1, nil)
	assert.ErrorIs(t, err, storage.ErrNotOpen)
	assert.NoError(t, s.Close())
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN(map[string]string{
		"host":     "db.local",
		"port":     "5432",
		"dbname":   "vikki",
		"user":     "agent",
		"password": `it's a \secret`,
		"schema":   "metrics",
	})
	require.NoError(t, err)
	assert.Equal(t, `dbname='vikki' host='db.local' password='it\'s a \\secret' port='5432' user='agent'`, dsn)

	_, err = postgresDSN(map[string]string{"host": "db.local"})
	assert.ErrorIs(t, err, storage.ErrMissingParam)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, `"load_average"`, table("", "load_average"))
	assert.Equal(t, `"public"."load_average"`, table("public", "load_average"))
}

func TestPostgresDialect(t *testing.T) {
	s := NewPostgres()
	assert.Equal(t, PostgresName, s.Name())
	assert.Equal(t, "public", postgresDialect.schema(nil))
	assert.Equal(t, "metrics", postgresDialect.schema(map[string]string{"schema": "metrics"}))
	assert.Equal(t, []any{"public", "cpu"}, postgresDialect.existsArgs("public", "cpu"))
}
