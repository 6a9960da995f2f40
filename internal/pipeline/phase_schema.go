package pipeline

import (
	"context"
	"time"

	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// phaseSchemaContext implements Phase 2 (spec.md §4.8, 5-15%): preload
// schema:<table> entries into the shared base pool so most placeholder
// analyses never need a schema.get_columns round trip. Non-fatal: any
// failure here just means Phase 3's agent loop falls back to on-demand
// discovery, per the phase's explicit contract.
func (p *Pipeline) phaseSchemaContext(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusScanning, 5, "preloading schema context")

	result, _, err := p.Tools.Execute(ctx, "schema.list_tables", map[string]any{
		"data_source_ref": r.task.DataSourceID,
	})
	if err != nil {
		p.Log.Warn("pipeline: schema.list_tables failed, deferring to on-demand discovery", "execution_id", r.execution.ID, "error", err)
		p.emit(ctx, r, 15, "schema preload skipped", nil)
		return nil
	}

	tables, _ := result["tables"].([]string)
	if len(tables) == 0 {
		p.emit(ctx, r, 15, "no tables to preload", nil)
		return nil
	}

	colsResult, _, err := p.Tools.Execute(ctx, "schema.get_columns", map[string]any{
		"tables":          tables,
		"data_source_ref": r.task.DataSourceID,
	})
	if err != nil {
		p.Log.Warn("pipeline: schema.get_columns failed, deferring to on-demand discovery", "execution_id", r.execution.ID, "error", err)
		p.emit(ctx, r, 15, "schema preload partially skipped", nil)
		return nil
	}

	columns, _ := colsResult["columns"].(map[string]any)
	for table, cols := range columns {
		r.basePool.Put(resourcepool.KeySchemaPrefix+table, cols, time.Hour)
	}

	p.emit(ctx, r, 15, "schema context preloaded", map[string]any{"tables_preloaded": len(columns)})
	return nil
}
