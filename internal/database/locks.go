package database

import (
	"context"
	"fmt"
	"time"
)

// LockRepository implements scheduler.LockStore against a single
// task_locks row per task, using an upsert that only succeeds when the
// existing lock (if any) has expired or is held by the same owner.
type LockRepository struct {
	client *Client
}

// NewLockRepository creates a LockRepository.
func NewLockRepository(c *Client) *LockRepository {
	return &LockRepository{client: c}
}

// TryAcquire takes taskID's lock for owner, valid for ttl, succeeding only
// if no live lock is held by a different owner.
func (r *LockRepository) TryAcquire(ctx context.Context, taskID, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.client.Pool.Exec(ctx,
		`INSERT INTO task_locks (task_id, owner_id, expires_at)
		 VALUES ($1, $2, now() + make_interval(secs => $3))
		 ON CONFLICT (task_id) DO UPDATE SET
		   owner_id = EXCLUDED.owner_id,
		   expires_at = EXCLUDED.expires_at
		 WHERE task_locks.expires_at < now() OR task_locks.owner_id = EXCLUDED.owner_id`,
		taskID, owner, ttl.Seconds(),
	)
	if err != nil {
		return false, fmt.Errorf("database: try acquire lock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Release drops taskID's lock if still held by owner.
func (r *LockRepository) Release(ctx context.Context, taskID, owner string) error {
	_, err := r.client.Pool.Exec(ctx,
		`DELETE FROM task_locks WHERE task_id = $1 AND owner_id = $2`, taskID, owner)
	if err != nil {
		return fmt.Errorf("database: release lock: %w", err)
	}
	return nil
}

// ReapExpired deletes every lock whose TTL has passed.
func (r *LockRepository) ReapExpired(ctx context.Context) (int, error) {
	tag, err := r.client.Pool.Exec(ctx, `DELETE FROM task_locks WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("database: reap expired locks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
