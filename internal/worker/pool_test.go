package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesItems(t *testing.T) {
	var sum atomic.Int64
	p := NewPool(2, 10, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		if n == 3 {
			return errors.New("three")
		}
		return nil
	})

	require.NoError(t, p.Start(context.Background()))
	for i := 1; i <= 4; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Stop(time.Second))

	assert.Equal(t, int64(10), sum.Load())
	stats := p.Stats()
	assert.Equal(t, int64(4), stats.Submitted)
	assert.Equal(t, int64(4), stats.Processed)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestPoolLifecycleErrors(t *testing.T) {
	p := NewPool(1, 1, func(context.Context, int) error { return nil })

	assert.ErrorIs(t, p.Submit(1), ErrPoolNotStarted)
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrPoolAlreadyStarted)
	require.NoError(t, p.Stop(time.Second))
	assert.ErrorIs(t, p.Submit(1), ErrPoolStopped)
	assert.NoError(t, p.Stop(time.Second))
}

func TestPoolQueueFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPool(1, 1, func(context.Context, int) error {
		started <- struct{}{}
		<-release
		return nil
	})
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(1))
	<-started
	require.NoError(t, p.Submit(2))
	assert.ErrorIs(t, p.Submit(3), ErrQueueFull)
	assert.Equal(t, int64(1), p.Stats().Dropped)

	close(release)
	require.NoError(t, p.Stop(time.Second))
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(0, 0, func(context.Context, int) error { return nil })
	assert.Equal(t, 4, p.Stats().Workers)
	assert.Equal(t, 64, p.Stats().QueueSize)

	assert.Panics(t, func() { NewPool[int](1, 1, nil) })
}
