package pipeline

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/models"
)

// sentinelValue replaces a failed placeholder's render-map entry when the
// tolerance gate passes, per spec.md §4.8 phase 5's literal text.
const sentinelValue = "【placeholder: data unavailable】"

// phaseToleranceCheck implements Phase 5 (spec.md §4.8, 85%): gate on the
// failure count against REPORT_MAX_FAILED_PLACEHOLDERS_FOR_DOC, or on zero
// successes when the template has placeholders; otherwise builds the render
// map, substituting the sentinel for every failed placeholder. A template
// with no placeholders passes with an empty render map.
func (p *Pipeline) phaseToleranceCheck(ctx context.Context, r *run) *outcome {
	f := len(r.etlFailed)
	s := len(r.etlValues)

	if f > p.Config.MaxFailedPlaceholdersForDoc || (s == 0 && len(r.placeholders) > 0) {
		r.execution.Result.FailedPlaceholders = placeholderNames(r, r.etlFailed)
		r.execution.Error = fmt.Sprintf("tolerance_exceeded: %d of %d placeholders failed", f, f+s)
		p.emit(ctx, r, 85, "tolerance check failed, aborting document assembly", map[string]any{"failed": f, "succeeded": s})
		return &outcome{status: models.StatusFailed, reason: "tolerance_exceeded"}
	}

	renderMap := make(map[string]any, len(r.placeholders))
	for _, ph := range r.placeholders {
		if value, ok := r.etlValues[ph.ID]; ok {
			renderMap[ph.Name] = renderValue(value)
			continue
		}
		renderMap[ph.Name] = sentinelValue
	}
	r.renderMap = renderMap
	r.execution.Result.FailedPlaceholders = placeholderNames(r, r.etlFailed)

	p.emit(ctx, r, 85, "tolerance check passed", map[string]any{"failed": f, "succeeded": s})
	return nil
}

func renderValue(v etl.Value) any {
	switch v.Kind {
	case etl.KindScalar:
		return v.Scalar
	case etl.KindRecord:
		return v.Record
	case etl.KindTable:
		return v.Table
	default:
		return nil
	}
}

func placeholderNames(r *run, ids []string) []string {
	byID := make(map[string]string, len(r.placeholders))
	for _, ph := range r.placeholders {
		byID[ph.ID] = ph.Name
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		}
	}
	return names
}
