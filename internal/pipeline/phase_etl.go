package pipeline

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/models"
)

// phaseETL implements Phase 4 (spec.md §4.8, 65-85%): resolve the report's
// time window once, then for each placeholder with validated cached SQL
// substitute the window's markers, execute via DataSourceConnector, and
// normalize the result. Per-item isolated: one placeholder's ETL failure
// never aborts the phase.
func (p *Pipeline) phaseETL(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusAnalyzing, 65, "extracting placeholder values")

	window := p.resolveWindow(ctx, r)

	r.etlValues = make(map[string]etl.Value, len(r.placeholders))
	for _, ph := range r.placeholders {
		res, analyzed := r.analysis[ph.ID]
		if !analyzed || !res.success {
			r.etlFailed = append(r.etlFailed, ph.ID)
			continue
		}

		value, err := p.ETL.Run(ctx, r.task.DataSourceID, res.placeholder.GeneratedSQL, window)
		if err != nil {
			p.Log.Warn("pipeline: etl failed", "execution_id", r.execution.ID, "placeholder_id", ph.ID, "error", err)
			r.etlFailed = append(r.etlFailed, ph.ID)
			continue
		}
		r.etlValues[ph.ID] = value
	}

	p.emit(ctx, r, 85, fmt.Sprintf("etl complete: %d succeeded, %d failed", len(r.etlValues), len(r.etlFailed)), map[string]any{
		"succeeded": len(r.etlValues), "failed": len(r.etlFailed),
	})
	return nil
}

// resolveWindow calls the time.window tool once per execution with a
// monthly granularity default, since no per-placeholder field in this
// module's data model names a reporting granularity (see DESIGN.md).
func (p *Pipeline) resolveWindow(ctx context.Context, r *run) map[string]string {
	result, _, err := p.Tools.Execute(ctx, "time.window", map[string]any{"granularity": "monthly"})
	if err != nil {
		p.Log.Warn("pipeline: time.window resolution failed, proceeding without substitution", "execution_id", r.execution.ID, "error", err)
		return nil
	}
	window := make(map[string]string, len(result))
	for k, v := range result {
		if s, ok := v.(string); ok {
			window[k] = s
		}
	}
	return window
}
