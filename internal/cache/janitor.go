package cache

import (
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/reride-fetch/internal/observability"
)

// DefaultCleanupInterval is the default period between expired-entry sweeps.
const DefaultCleanupInterval = 5 * time.Minute

// Janitor periodically removes expired entries from a Cleaner.
// The owner starts it once at startup and stops it on shutdown.
type Janitor struct {
	cleaner  Cleaner
	interval time.Duration
	logger   observability.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJanitor creates a janitor sweeping cleaner every interval.
// A non-positive interval selects DefaultCleanupInterval.
func NewJanitor(cleaner Cleaner, interval time.Duration, logger observability.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Janitor{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. It is a no-op if the janitor is already
// running. The loop ends when ctx is done or Stop is called.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.run(ctx, j.done)

	j.logger.Info("cache janitor started",
		observability.Duration("interval", j.interval))
}

// Stop ends the sweep loop and waits for it to exit. It is safe to call
// Stop on a janitor that was never started.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel, done := j.cancel, j.done
	j.running = false
	j.mu.Unlock()

	cancel()
	<-done

	j.logger.Info("cache janitor stopped")
}

// Running reports whether the sweep loop is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := j.cleaner.Cleanup(); removed > 0 {
				j.logger.Debug("cache janitor removed expired entries",
					observability.Int("removed", removed))
			}
		}
	}
}
