package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reportforge/reportengine/internal/models"
)

// ExecutionRepository persists TaskExecution rows.
type ExecutionRepository struct {
	client *Client
}

// NewExecutionRepository creates an ExecutionRepository.
func NewExecutionRepository(c *Client) *ExecutionRepository {
	return &ExecutionRepository{client: c}
}

// Create inserts a new execution. A (task_id, trigger_id) unique constraint
// makes this idempotent for retried triggers: a second Create for the same
// trigger returns ErrDuplicateTrigger instead of a new row, per spec.md §6's
// idempotency requirement.
func (r *ExecutionRepository) Create(ctx context.Context, e models.TaskExecution) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("database: marshal result: %w", err)
	}
	_, err = r.client.Pool.Exec(ctx,
		`INSERT INTO task_executions (id, task_id, trigger_id, status, started_at, progress, result, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.TaskID, e.TriggerID, string(e.Status), e.StartedAt, e.Progress, result, e.Error,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTrigger
		}
		return fmt.Errorf("database: insert execution: %w", err)
	}
	return nil
}

// ByTrigger looks up an existing execution for (taskID, triggerID), used by
// the pipeline's idempotency check before starting a new run.
func (r *ExecutionRepository) ByTrigger(ctx context.Context, taskID, triggerID string) (models.TaskExecution, bool, error) {
	row := r.client.Pool.QueryRow(ctx,
		`SELECT id, task_id, trigger_id, status, started_at, finished_at, progress, result, error
		 FROM task_executions WHERE task_id = $1 AND trigger_id = $2`, taskID, triggerID)
	e, err := scanExecution(row)
	if err != nil {
		if err == errNoRows {
			return models.TaskExecution{}, false, nil
		}
		return models.TaskExecution{}, false, err
	}
	return e, true, nil
}

// Get fetches an execution by ID.
func (r *ExecutionRepository) Get(ctx context.Context, id string) (models.TaskExecution, error) {
	row := r.client.Pool.QueryRow(ctx,
		`SELECT id, task_id, trigger_id, status, started_at, finished_at, progress, result, error
		 FROM task_executions WHERE id = $1`, id)
	return scanExecution(row)
}

// UpdateStatus transitions status/progress/result/error and, when status is
// terminal, stamps finished_at.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, progress float64, result models.ResultBlob, execErr string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("database: marshal result: %w", err)
	}

	var finishedAtSQL string
	if status.Terminal() {
		finishedAtSQL = "now()"
	} else {
		finishedAtSQL = "finished_at"
	}

	_, err = r.client.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE task_executions SET status = $1, progress = $2, result = $3, error = $4, finished_at = %s WHERE id = $5`, finishedAtSQL),
		string(status), progress, resultJSON, execErr, id,
	)
	if err != nil {
		return fmt.Errorf("database: update execution status: %w", err)
	}
	return nil
}

// NonTerminal returns every execution not yet in a terminal state. The
// process does not call it at startup: in-flight executions left behind by
// a crashed process are neither resumed nor marked failed.
func (r *ExecutionRepository) NonTerminal(ctx context.Context) ([]models.TaskExecution, error) {
	rows, err := r.client.Pool.Query(ctx,
		`SELECT id, task_id, trigger_id, status, started_at, finished_at, progress, result, error
		 FROM task_executions
		 WHERE status NOT IN ('completed', 'failed', 'cancelled')`)
	if err != nil {
		return nil, fmt.Errorf("database: query non-terminal executions: %w", err)
	}
	defer rows.Close()

	var out []models.TaskExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (models.TaskExecution, error) {
	var e models.TaskExecution
	var status string
	var result []byte
	if err := row.Scan(&e.ID, &e.TaskID, &e.TriggerID, &status, &e.StartedAt, &e.FinishedAt, &e.Progress, &result, &e.Error); err != nil {
		if isNoRows(err) {
			return e, errNoRows
		}
		return e, fmt.Errorf("database: scan execution: %w", err)
	}
	e.Status = models.ExecutionStatus(status)
	if len(result) > 0 {
		_ = json.Unmarshal(result, &e.Result)
	}
	return e, nil
}
