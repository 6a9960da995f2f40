package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reportforge/reportengine/internal/models"
)

// TaskRepository persists Task rows. It satisfies scheduler.TaskProvider.
type TaskRepository struct {
	client *Client
}

// NewTaskRepository creates a TaskRepository.
func NewTaskRepository(c *Client) *TaskRepository {
	return &TaskRepository{client: c}
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, t models.Task) error {
	recipients, err := json.Marshal(t.Recipients)
	if err != nil {
		return fmt.Errorf("database: marshal recipients: %w", err)
	}
	_, err = r.client.Pool.Exec(ctx,
		`INSERT INTO tasks (id, owner_id, name, template_id, data_source_id, schedule, recipients, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.OwnerID, t.Name, t.TemplateID, t.DataSourceID, t.Schedule, recipients, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("database: insert task: %w", err)
	}
	return nil
}

// Get fetches a task by ID.
func (r *TaskRepository) Get(ctx context.Context, id string) (models.Task, error) {
	row := r.client.Pool.QueryRow(ctx,
		`SELECT id, owner_id, name, template_id, data_source_id, schedule, recipients, is_active, created_at, updated_at
		 FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

// ActiveTasks returns every task with is_active = true, implementing
// scheduler.TaskProvider.
func (r *TaskRepository) ActiveTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := r.client.Pool.Query(ctx,
		`SELECT id, owner_id, name, template_id, data_source_id, schedule, recipients, is_active, created_at, updated_at
		 FROM tasks WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("database: query active tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var recipients []byte
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.TemplateID, &t.DataSourceID, &t.Schedule, &recipients, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, fmt.Errorf("database: scan task: %w", err)
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &t.Recipients); err != nil {
			return t, fmt.Errorf("database: unmarshal recipients: %w", err)
		}
	}
	return t, nil
}
