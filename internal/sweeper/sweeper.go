// Package sweeper evicts in-memory sessions that have been idle too long.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is how often the worker sweeps.
const DefaultInterval = 5 * time.Minute

// Evicter drops sessions idle since before cutoff and reports how many.
type Evicter interface {
	EvictIdle(cutoff time.Time) int
}

// Worker periodically evicts idle sessions.
type Worker struct {
	target   Evicter
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// New creates a worker that evicts sessions idle for longer than ttl.
func New(target Evicter, ttl time.Duration) *Worker {
	return &Worker{
		target:   target,
		ttl:      ttl,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// WithInterval overrides the sweep interval.
func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

// Run sweeps until ctx is cancelled. It always returns nil so it can run
// inside an errgroup.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	slog.Info("Session sweeper started", "interval", w.interval, "ttl", w.ttl)

	for {
		select {
		case <-ticker.C:
			w.Sweep()
		case <-ctx.Done():
			slog.Info("Session sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

// Sweep runs one eviction pass and returns the number of sessions dropped.
func (w *Worker) Sweep() int {
	n := w.target.EvictIdle(w.now().Add(-w.ttl))
	if n > 0 {
		slog.Info("Session sweeper evicted idle sessions", "count", n)
	}
	return n
}
