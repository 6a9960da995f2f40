package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Janitor periodically reaps expired task locks, so a crashed owner's lock
// does not block that task's schedule forever, modeled on the teacher's
// pkg/queue/orphan.go periodic-ticker pattern.
type Janitor struct {
	locks    LockStore
	interval time.Duration
	log      *slog.Logger
	stopCh   chan struct{}
}

// NewJanitor creates a Janitor.
func NewJanitor(locks LockStore, interval time.Duration, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{locks: locks, interval: interval, log: log, stopCh: make(chan struct{})}
}

// Run blocks, sweeping on every tick until ctx is cancelled or Stop is called.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// Stop ends a running Run loop.
func (j *Janitor) Stop() {
	close(j.stopCh)
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.locks.ReapExpired(ctx)
	if err != nil {
		j.log.Error("scheduler: janitor sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Info("scheduler: janitor reaped expired locks", "count", n)
	}
}
