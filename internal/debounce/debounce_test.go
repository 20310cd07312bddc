package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_BurstExecutesOnceWithLastArgument(t *testing.T) {
	var (
		calls atomic.Int64
		mu    sync.Mutex
		args  []string
	)
	d := New(func(_ context.Context, q string) (string, error) {
		calls.Add(1)
		mu.Lock()
		args = append(args, q)
		mu.Unlock()
		return "result:" + q, nil
	}, 50*time.Millisecond)
	defer d.Stop()

	queries := []string{"s", "sw", "swi", "swif", "swift"}
	results := make([]string, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			results[i], errs[i] = d.Call(context.Background(), q)
		}(i, q)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, []string{"swift"}, args)
	for i := range queries {
		require.NoError(t, errs[i])
		assert.Equal(t, "result:swift", results[i])
	}
}

func TestDebouncer_AllCallersReceiveError(t *testing.T) {
	boom := errors.New("upstream failed")
	d := New(func(context.Context, int) (int, error) {
		return 0, boom
	}, 20*time.Millisecond)
	defer d.Stop()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Call(context.Background(), i)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
}

func TestDebouncer_SeparateWindowsExecuteSeparately(t *testing.T) {
	var calls atomic.Int64
	d := New(func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		return n * 2, nil
	}, 10*time.Millisecond)
	defer d.Stop()

	v, err := d.Call(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = d.Call(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	assert.Equal(t, int64(2), calls.Load())
}

func TestDebouncer_ExecutionsNeverOverlap(t *testing.T) {
	var (
		active  atomic.Int64
		overlap atomic.Bool
		calls   atomic.Int64
	)
	d := New(func(_ context.Context, n int) (int, error) {
		if active.Add(1) > 1 {
			overlap.Store(true)
		}
		calls.Add(1)
		time.Sleep(40 * time.Millisecond)
		active.Add(-1)
		return n, nil
	}, 5*time.Millisecond)
	defer d.Stop()

	first := make(chan int, 1)
	go func() {
		v, _ := d.Call(context.Background(), 1)
		first <- v
	}()

	// Let the first window start executing, then open a second one whose
	// timer fires while the first execution is still running.
	time.Sleep(15 * time.Millisecond)
	v, err := d.Call(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, <-first)

	assert.False(t, overlap.Load(), "executions overlapped")
	assert.Equal(t, int64(2), calls.Load())
}

func TestDebouncer_CallerContextCancellation(t *testing.T) {
	var calls atomic.Int64
	d := New(func(_ context.Context, s string) (string, error) {
		calls.Add(1)
		return s, nil
	}, 30*time.Millisecond)
	defer d.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Call(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)

	// The window still executes.
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDebouncer_Flush(t *testing.T) {
	var calls atomic.Int64
	d := New(func(_ context.Context, s string) (string, error) {
		calls.Add(1)
		return s, nil
	}, time.Hour)
	defer d.Stop()

	require.NoError(t, d.Trigger("x"))
	assert.True(t, d.Pending())

	d.Flush()
	assert.False(t, d.Pending())
	assert.Equal(t, int64(1), calls.Load())

	// Flush without a pending window is a no-op.
	d.Flush()
	assert.Equal(t, int64(1), calls.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int64
	d := New(func(_ context.Context, s string) (string, error) {
		calls.Add(1)
		return s, nil
	}, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Call(context.Background(), "pending")
		errCh <- err
	}()
	require.Eventually(t, d.Pending, time.Second, time.Millisecond)

	d.Stop()
	d.Stop()

	assert.ErrorIs(t, <-errCh, ErrStopped)
	assert.Equal(t, int64(0), calls.Load())

	_, err := d.Call(context.Background(), "late")
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, d.Trigger("late"), ErrStopped)
}

func TestDebouncer_StopCancelsRunningExecution(t *testing.T) {
	started := make(chan struct{})
	d := New(func(ctx context.Context, _ int) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, time.Millisecond)

	errCh := make(chan error, 1)
	go func() {
		_, err := d.Call(context.Background(), 1)
		errCh <- err
	}()

	<-started
	d.Stop()

	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestDebouncer_Panic(t *testing.T) {
	d := New(func(context.Context, int) (int, error) {
		panic("kaboom")
	}, time.Millisecond)
	defer d.Stop()

	_, err := d.Call(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPanic)
}

func TestDebouncer_WithContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	d := New(func(ctx context.Context, _ int) (bool, error) {
		return ctx.Err() != nil, nil
	}, time.Millisecond, WithContext(parent), WithName("test"))
	defer d.Stop()

	cancel()
	cancelled, err := d.Call(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, cancelled)
}
