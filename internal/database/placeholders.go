package database

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/models"
)

// PlaceholderRepository persists per-template Placeholder rows, including
// the agent's generated SQL and AgentConfig metadata blob.
type PlaceholderRepository struct {
	client *Client
}

// NewPlaceholderRepository creates a PlaceholderRepository.
func NewPlaceholderRepository(c *Client) *PlaceholderRepository {
	return &PlaceholderRepository{client: c}
}

// Upsert inserts or updates a placeholder, keyed by (task_id, placeholder_key).
func (r *PlaceholderRepository) Upsert(ctx context.Context, taskID string, p models.Placeholder) error {
	var lastSuccess *bool
	var lastMessage *string
	if p.AgentConfig.LastTestResult != nil {
		lastSuccess = &p.AgentConfig.LastTestResult.Success
		lastMessage = &p.AgentConfig.LastTestResult.Message
	}

	_, err := r.client.Pool.Exec(ctx,
		`INSERT INTO template_placeholders
		   (id, task_id, placeholder_key, description, semantic_type, agent_analyzed,
		    generated_sql, generation_method, iterations, fallback_reason,
		    last_test_success, last_test_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		 ON CONFLICT (task_id, placeholder_key) DO UPDATE SET
		   description = EXCLUDED.description,
		   semantic_type = EXCLUDED.semantic_type,
		   agent_analyzed = EXCLUDED.agent_analyzed,
		   generated_sql = EXCLUDED.generated_sql,
		   generation_method = EXCLUDED.generation_method,
		   iterations = EXCLUDED.iterations,
		   fallback_reason = EXCLUDED.fallback_reason,
		   last_test_success = EXCLUDED.last_test_success,
		   last_test_message = EXCLUDED.last_test_message,
		   updated_at = now()`,
		p.ID, taskID, p.Name, p.Description, string(p.SemanticType), p.AgentAnalyzed,
		p.GeneratedSQL, p.AgentConfig.GenerationMethod, p.AgentConfig.Iterations, p.AgentConfig.FallbackReason,
		lastSuccess, lastMessage,
	)
	if err != nil {
		return fmt.Errorf("database: upsert placeholder: %w", err)
	}
	return nil
}

// ByTask returns every placeholder row for a task.
func (r *PlaceholderRepository) ByTask(ctx context.Context, taskID string) ([]models.Placeholder, error) {
	rows, err := r.client.Pool.Query(ctx,
		`SELECT id, placeholder_key, description, semantic_type, agent_analyzed, generated_sql,
		        generation_method, iterations, fallback_reason, last_test_success, last_test_message,
		        created_at, updated_at
		 FROM template_placeholders WHERE task_id = $1
		 ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("database: query placeholders: %w", err)
	}
	defer rows.Close()

	var out []models.Placeholder
	for rows.Next() {
		var p models.Placeholder
		var semanticType string
		var generationMethod, fallbackReason, lastMessage *string
		var iterations *int
		var lastSuccess *bool
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &semanticType, &p.AgentAnalyzed, &p.GeneratedSQL,
			&generationMethod, &iterations, &fallbackReason, &lastSuccess, &lastMessage,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("database: scan placeholder: %w", err)
		}
		p.SemanticType = models.SemanticType(semanticType)
		if generationMethod != nil {
			p.AgentConfig.GenerationMethod = *generationMethod
		}
		if iterations != nil {
			p.AgentConfig.Iterations = *iterations
		}
		if fallbackReason != nil {
			p.AgentConfig.FallbackReason = *fallbackReason
		}
		if lastSuccess != nil {
			msg := ""
			if lastMessage != nil {
				msg = *lastMessage
			}
			p.AgentConfig.LastTestResult = &models.TestResult{Success: *lastSuccess, Message: msg}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
