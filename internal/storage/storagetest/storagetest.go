// Package storagetest holds the behavior every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpp11nullptr/vikki/internal/storage"
)

// Factory returns an opened backend. Cleanup is the caller's job via t.Cleanup.
type Factory func(t *testing.T) storage.Storage

// Run exercises the storage contract against backends created by newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("PrepareEntityIsIdempotent", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.PrepareEntity(ctx, "memory_usage"))
		require.NoError(t, s.PrepareEntity(ctx, "memory_usage"))
		require.NoError(t, s.Put(ctx, "memory_usage", 10, []byte{1}))
		require.NoError(t, s.PrepareEntity(ctx, "memory_usage"))

		records, err := s.Get(ctx, "memory_usage", 0, 100)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("GetIsInclusiveAndAscending", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.PrepareEntity(ctx, "load_average"))
		for _, ts := range []int64{30, 10, 50, 20, 40} {
			require.NoError(t, s.Put(ctx, "load_average", ts, []byte{byte(ts)}))
		}

		records, err := s.Get(ctx, "load_average", 20, 40)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, want := range []int64{20, 30, 40} {
			assert.Equal(t, want, records[i].Timestamp)
			assert.Equal(t, []byte{byte(want)}, records[i].Payload)
		}
	})

	t.Run("EmptyRangeReturnsNoRecords", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.PrepareEntity(ctx, "cpu_usage"))
		require.NoError(t, s.Put(ctx, "cpu_usage", 100, []byte{1}))

		records, err := s.Get(ctx, "cpu_usage", 0, 99)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("UnpreparedSensorReturnsNoRecords", func(t *testing.T) {
		s := newStorage(t)
		records, err := s.Get(ctx, "never_prepared", 0, 1<<40)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("EqualTimestampOverwrites", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.PrepareEntity(ctx, "uptime"))
		require.NoError(t, s.Put(ctx, "uptime", 1000, []byte("first")))
		require.NoError(t, s.Put(ctx, "uptime", 1000, []byte("second")))

		records, err := s.Get(ctx, "uptime", 1000, 1000)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []byte("second"), records[0].Payload)
	})

	t.Run("SensorsAreIsolated", func(t *testing.T) {
		s := newStorage(t)
		require.NoError(t, s.PrepareEntity(ctx, "a"))
		require.NoError(t, s.PrepareEntity(ctx, "b"))
		require.NoError(t, s.Put(ctx, "a", 1, []byte("a")))
		require.NoError(t, s.Put(ctx, "b", 1, []byte("b")))

		records, err := s.Get(ctx, "a", 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []byte("a"), records[0].Payload)
	})

	t.Run("LargePayload", func(t *testing.T) {
		s := newStorage(t)
		payload := make([]byte, 64*1024)
		for i := range payload {
			payload[i] = byte(i % 7)
		}
		require.NoError(t, s.PrepareEntity(ctx, "file_system_usage"))
		require.NoError(t, s.Put(ctx, "file_system_usage", 5, payload))

		records, err := s.Get(ctx, "file_system_usage", 5, 5)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, payload, records[0].Payload)
	})

	t.Run("InvalidEntityIsRejected", func(t *testing.T) {
		s := newStorage(t)
		err := s.PrepareEntity(ctx, "bad name;")
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrInvalidEntity))

		var se *storage.Error
		assert.True(t, errors.As(err, &se))
	})
}
