package debounce

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

var (
	// ErrStopped is returned for calls made to, or pending in, a stopped
	// Debouncer.
	ErrStopped = errors.New("debouncer stopped")

	// ErrPanic is returned to the waiters of an execution that panicked.
	ErrPanic = errors.New("debounced function panicked")
)

// Func is the debounced function.
type Func[A, R any] func(ctx context.Context, arg A) (R, error)

// window collects the calls made during one quiet period.
type window[A, R any] struct {
	arg   A
	calls int
	done  chan struct{}
	res   R
	err   error
}

// Debouncer delays execution of a function until calls stop arriving for
// the configured delay.
type Debouncer[A, R any] struct {
	fn     Func[A, R]
	delay  time.Duration
	name   string
	logger observability.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	timer *time.Timer
	// gen invalidates timers that fired after being superseded.
	gen     uint64
	pending *window[A, R]
	// running is closed when the most recently started execution ends.
	running chan struct{}
	stopped bool
}

// Option configures a Debouncer.
type Option func(*options)

type options struct {
	name   string
	logger observability.Logger
	ctx    context.Context
}

// WithName sets the name used in logs and metrics labels.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithContext sets the parent of the context passed to fn. Executions are
// cancelled when it ends or when Stop is called.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		if ctx != nil {
			o.ctx = ctx
		}
	}
}

// New creates a Debouncer running fn after delay of inactivity.
func New[A, R any](fn Func[A, R], delay time.Duration, opts ...Option) *Debouncer[A, R] {
	o := options{
		name:   "default",
		logger: observability.NopLogger(),
		ctx:    context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(o.ctx)

	return &Debouncer[A, R]{
		fn:     fn,
		delay:  delay,
		name:   o.name,
		logger: o.logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Call schedules fn with arg and waits for the execution of the current
// window. If ctx ends first, Call returns ctx.Err() and the window still
// executes for the remaining callers.
func (d *Debouncer[A, R]) Call(ctx context.Context, arg A) (R, error) {
	w, err := d.schedule(arg)
	if err != nil {
		var zero R
		return zero, err
	}

	select {
	case <-w.done:
		return w.res, w.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Trigger schedules fn with arg without waiting for the result. It returns
// ErrStopped if the debouncer has been stopped.
func (d *Debouncer[A, R]) Trigger(arg A) error {
	_, err := d.schedule(arg)
	return err
}

// Flush executes the pending window now, if any, and waits for it.
func (d *Debouncer[A, R]) Flush() {
	d.mu.Lock()
	if d.pending == nil || d.stopped {
		d.mu.Unlock()
		return
	}
	d.gen++
	d.stopTimerLocked()
	w, prev, done := d.takeLocked()
	d.mu.Unlock()

	d.run(w, prev, done)
}

// Pending reports whether a window is waiting for its timer.
func (d *Debouncer[A, R]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Stop cancels the pending window, whose callers receive ErrStopped, and
// cancels the context of a running execution, waiting for it to return.
// Later calls fail with ErrStopped. Stop is idempotent.
func (d *Debouncer[A, R]) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.gen++
	d.stopTimerLocked()
	w := d.pending
	d.pending = nil
	running := d.running
	d.mu.Unlock()

	d.cancel()

	if w != nil {
		w.err = ErrStopped
		close(w.done)
		d.logger.Debug("debouncer stopped with pending calls",
			observability.String("name", d.name),
			observability.Int("calls", w.calls))
	}
	if running != nil {
		<-running
	}
}

func (d *Debouncer[A, R]) schedule(arg A) (*window[A, R], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return nil, ErrStopped
	}

	GetMetrics().callsTotal.WithLabelValues(d.name).Inc()

	if d.pending == nil {
		d.pending = &window[A, R]{done: make(chan struct{})}
	}
	d.pending.arg = arg
	d.pending.calls++

	d.gen++
	gen := d.gen
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})

	return d.pending, nil
}

// fire runs when the quiet period of generation gen ends.
func (d *Debouncer[A, R]) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	w, prev, done := d.takeLocked()
	d.mu.Unlock()

	d.run(w, prev, done)
}

// takeLocked detaches the pending window and chains its execution after
// the previous one. Must be called with lock held.
func (d *Debouncer[A, R]) takeLocked() (*window[A, R], chan struct{}, chan struct{}) {
	w := d.pending
	d.pending = nil
	prev := d.running
	done := make(chan struct{})
	d.running = done
	return w, prev, done
}

func (d *Debouncer[A, R]) run(w *window[A, R], prev, done chan struct{}) {
	defer close(done)

	if prev != nil {
		<-prev
	}

	start := time.Now()
	w.res, w.err = d.execute(w.arg)
	elapsed := time.Since(start)

	result := "success"
	if w.err != nil {
		result = "error"
	}
	GetMetrics().executionsTotal.WithLabelValues(d.name, result).Inc()
	GetMetrics().executionDuration.WithLabelValues(d.name).Observe(elapsed.Seconds())

	d.logger.Debug("debounced function executed",
		observability.String("name", d.name),
		observability.Int("coalescedCalls", w.calls),
		observability.Duration("duration", elapsed),
		observability.Bool("failed", w.err != nil))

	close(w.done)
}

func (d *Debouncer[A, R]) execute(arg A) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("debounced function panicked",
				observability.String("name", d.name),
				observability.Any("panic", r),
				observability.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return d.fn(d.ctx, arg)
}

// stopTimerLocked stops the quiet-period timer. Must be called with lock held.
func (d *Debouncer[A, R]) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
