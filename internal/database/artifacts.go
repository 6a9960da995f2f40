package database

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/models"
)

// ArtifactRepository persists ReportArtifact rows, immutable once written.
type ArtifactRepository struct {
	client *Client
}

// NewArtifactRepository creates an ArtifactRepository.
func NewArtifactRepository(c *Client) *ArtifactRepository {
	return &ArtifactRepository{client: c}
}

// Create inserts the artifact record for a completed execution.
func (r *ArtifactRepository) Create(ctx context.Context, a models.ReportArtifact) error {
	_, err := r.client.Pool.Exec(ctx,
		`INSERT INTO report_artifacts (id, execution_id, object_key, size, backend, friendly_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.ExecutionID, a.ObjectKey, a.Size, a.Backend, a.FriendlyName, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("database: insert artifact: %w", err)
	}
	return nil
}

// ByExecution fetches the artifact produced by a given execution, if any.
func (r *ArtifactRepository) ByExecution(ctx context.Context, executionID string) (models.ReportArtifact, bool, error) {
	row := r.client.Pool.QueryRow(ctx,
		`SELECT id, execution_id, object_key, size, backend, friendly_name, created_at
		 FROM report_artifacts WHERE execution_id = $1`, executionID)

	var a models.ReportArtifact
	if err := row.Scan(&a.ID, &a.ExecutionID, &a.ObjectKey, &a.Size, &a.Backend, &a.FriendlyName, &a.CreatedAt); err != nil {
		if isNoRows(err) {
			return models.ReportArtifact{}, false, nil
		}
		return models.ReportArtifact{}, false, fmt.Errorf("database: scan artifact: %w", err)
	}
	return a, true, nil
}
