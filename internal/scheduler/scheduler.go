// Package scheduler implements TaskScheduler (spec.md §4.2): cron-driven
// dispatch of active Tasks with a per-task distributed lock so exactly one
// process runs a given task's trigger at a time, plus a janitor pass that
// reaps expired locks, modeled on the teacher's pkg/queue worker-pool /
// orphan-detection structure (pkg/queue/pool.go, pkg/queue/orphan.go)
// generalized from ent-backed session polling to lock-gated cron dispatch.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reportforge/reportengine/internal/models"
)

// LockStore is the distributed per-task lock backing TaskScheduler's
// at-most-one-runner guarantee. Implemented against Postgres in
// internal/database.
type LockStore interface {
	// TryAcquire attempts to take taskID's lock for owner, valid for ttl.
	// Returns false (no error) if another owner currently holds it.
	TryAcquire(ctx context.Context, taskID, owner string, ttl time.Duration) (bool, error)
	// Release drops taskID's lock if still held by owner.
	Release(ctx context.Context, taskID, owner string) error
	// ReapExpired deletes every lock whose TTL has passed and reports how
	// many were removed.
	ReapExpired(ctx context.Context) (int, error)
}

// TaskProvider supplies the active tasks to schedule.
type TaskProvider interface {
	ActiveTasks(ctx context.Context) ([]models.Task, error)
}

// Dispatcher runs one task's trigger, i.e. starts the placeholder pipeline
// for it. Implemented by internal/pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, task models.Task) error
}

// TaskScheduler owns the cron loop, re-reading TaskProvider on every Reload
// and registering one cron.Schedule entry per active task.
type TaskScheduler struct {
	cron       *cron.Cron
	tasks      TaskProvider
	locks      LockStore
	dispatcher Dispatcher
	ownerID    string
	lockTTL    time.Duration

	entries map[string]cron.EntryID
	log     *slog.Logger
}

// New creates a TaskScheduler. ownerID identifies this process in the
// distributed lock (e.g. a hostname+PID string), so a lock held by a dead
// process can be told apart from one held by a live peer.
func New(tasks TaskProvider, locks LockStore, dispatcher Dispatcher, ownerID string, lockTTL time.Duration, log *slog.Logger) *TaskScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskScheduler{
		cron:       cron.New(cron.WithSeconds()),
		tasks:      tasks,
		locks:      locks,
		dispatcher: dispatcher,
		ownerID:    ownerID,
		lockTTL:    lockTTL,
		entries:    make(map[string]cron.EntryID),
		log:        log,
	}
}

// Start loads active tasks, registers their cron entries, and starts the
// cron loop in the background.
func (s *TaskScheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop drains the cron loop, waiting for any in-flight entry to finish.
func (s *TaskScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reload re-reads TaskProvider and replaces every cron entry, so newly
// created, edited, or deactivated tasks take effect on the next poll
// without a process restart.
func (s *TaskScheduler) Reload(ctx context.Context) error {
	tasks, err := s.tasks.ActiveTasks(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		seen[task.ID] = true
		if _, exists := s.entries[task.ID]; exists {
			continue
		}
		id, err := s.cron.AddFunc(task.Schedule, s.runner(task))
		if err != nil {
			s.log.Error("scheduler: invalid cron schedule", "task_id", task.ID, "schedule", task.Schedule, "error", err)
			continue
		}
		s.entries[task.ID] = id
	}

	for taskID, entryID := range s.entries {
		if !seen[taskID] {
			s.cron.Remove(entryID)
			delete(s.entries, taskID)
		}
	}
	return nil
}

func (s *TaskScheduler) runner(task models.Task) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL)
		defer cancel()

		acquired, err := s.locks.TryAcquire(ctx, task.ID, s.ownerID, s.lockTTL)
		if err != nil {
			s.log.Error("scheduler: lock acquire failed", "task_id", task.ID, "error", err)
			return
		}
		if !acquired {
			s.log.Debug("scheduler: task locked by a peer, skipping", "task_id", task.ID)
			return
		}
		defer func() {
			if err := s.locks.Release(ctx, task.ID, s.ownerID); err != nil {
				s.log.Warn("scheduler: lock release failed", "task_id", task.ID, "error", err)
			}
		}()

		if err := s.dispatcher.Dispatch(ctx, task); err != nil {
			s.log.Error("scheduler: dispatch failed", "task_id", task.ID, "error", err)
		}
	}
}
