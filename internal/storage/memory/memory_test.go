package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpp11nullptr/vikki/internal/storage"
	"github.com/cpp11nullptr/vikki/internal/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		s := New()
		require.NoError(t, s.Open(context.Background(), nil))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestClosedStorageRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.ErrorIs(t, s.Put(ctx, "cpu", 1, []byte{1}), storage.ErrNotOpen)
	_, err := s.Get(ctx, "cpu", 0, 1)
	assert.ErrorIs(t, err, storage.ErrNotOpen)
	assert.ErrorIs(t, s.PrepareEntity(ctx, "cpu"), storage.ErrNotOpen)
}

func TestPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Open(ctx, nil))

	payload := []byte{1, 2, 3}
	require.NoError(t, s.Put(ctx, "cpu", 1, payload))
	payload[0] = 9

	records, err := s.Get(ctx, "cpu", 1, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []byte{1, 2, 3}, records[0].Payload)
}
