package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCleaner struct {
	calls atomic.Int64
}

func (c *countingCleaner) Cleanup() int {
	c.calls.Add(1)
	return 1
}

func TestJanitor_SweepsPeriodically(t *testing.T) {
	cleaner := &countingCleaner{}
	j := NewJanitor(cleaner, 10*time.Millisecond, nil)

	j.Start(context.Background())
	defer j.Stop()

	assert.Eventually(t, func() bool {
		return cleaner.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestJanitor_StartIsIdempotent(t *testing.T) {
	j := NewJanitor(&countingCleaner{}, time.Hour, nil)

	j.Start(context.Background())
	j.Start(context.Background())
	assert.True(t, j.Running())

	j.Stop()
	assert.False(t, j.Running())

	// Stop after Stop is a no-op.
	j.Stop()
}

func TestJanitor_StopWithoutStart(t *testing.T) {
	j := NewJanitor(&countingCleaner{}, 0, nil)
	assert.Equal(t, DefaultCleanupInterval, j.interval)
	j.Stop()
	assert.False(t, j.Running())
}

func TestJanitor_StopsWhenContextDone(t *testing.T) {
	cleaner := &countingCleaner{}
	j := NewJanitor(cleaner, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	cancel()

	j.Stop()
	calls := cleaner.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, cleaner.calls.Load())
}

func TestJanitor_PurgesMemoryCache(t *testing.T) {
	c, clock := newTestMemoryCache(10, time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	clock.Advance(time.Second)

	j := NewJanitor(c, 5*time.Millisecond, nil)
	j.Start(context.Background())
	defer j.Stop()

	assert.Eventually(t, func() bool {
		return c.Stats().Total == 0
	}, time.Second, 5*time.Millisecond)
}
