package pipeline

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// phaseInit implements Phase 1 (spec.md §4.8, 0-5%): load the task, its
// placeholders, and confirm the configured data source resolves; create the
// ResourcePool. Any load failure is fatal.
func (p *Pipeline) phaseInit(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusScanning, 0, "loading task definition")

	task, err := p.Tasks.Get(ctx, r.task.ID)
	if err != nil {
		return p.fatal(ctx, r, "task_load_failed", fmt.Errorf("pipeline: load task: %w", err))
	}
	r.task = task
	r.templateRef = task.TemplateID

	placeholders, err := p.Placeholders.ByTask(ctx, task.ID)
	if err != nil {
		return p.fatal(ctx, r, "placeholder_load_failed", fmt.Errorf("pipeline: load placeholders: %w", err))
	}
	r.placeholders = placeholders

	if _, err := p.DataSources.Get(task.DataSourceID); err != nil {
		return p.fatal(ctx, r, "datasource_unresolved", fmt.Errorf("pipeline: resolve data source: %w", err))
	}

	r.basePool = resourcepool.New()

	p.emit(ctx, r, 5, fmt.Sprintf("loaded %d placeholders", len(placeholders)), map[string]any{
		"placeholder_count": len(placeholders),
	})
	return nil
}

// fatal persists a short failure reason on r.execution and returns the
// terminal outcome that short-circuits the remaining phases straight to
// Finalize, per spec.md §4.8's "Fatal on any load failure"/phase-level
// fatal semantics.
func (p *Pipeline) fatal(ctx context.Context, r *run, code string, err error) *outcome {
	r.execution.Error = fmt.Sprintf("%s: %v", code, err)
	p.Log.Error("pipeline: phase fatal", "execution_id", r.execution.ID, "code", code, "error", err)
	return &outcome{status: models.StatusFailed, reason: code}
}
