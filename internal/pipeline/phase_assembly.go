package pipeline

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/document"
	"github.com/reportforge/reportengine/internal/models"
)

// phaseDocumentAssembly implements Phase 6 (spec.md §4.8, 85-92%): call
// DocumentAssembler with one retry on failure; a second failure is fatal,
// per the phase's failure-semantics row.
func (p *Pipeline) phaseDocumentAssembly(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusAssembling, 85, "assembling report document")

	opts := document.Options{UseChartEnhancement: true, UseContentOptimization: false}

	result, err := p.Assembler.Assemble(ctx, r.templateRef, r.renderMap, opts)
	if err != nil {
		p.Log.Warn("pipeline: document assembly failed, retrying once", "execution_id", r.execution.ID, "error", err)
		result, err = p.Assembler.Assemble(ctx, r.templateRef, r.renderMap, opts)
		if err != nil {
			return p.fatal(ctx, r, "assembly_failed", fmt.Errorf("pipeline: assemble document: %w", err))
		}
	}

	r.assembledBytes = result.Bytes
	r.friendlyName = result.FriendlyName

	p.emit(ctx, r, 92, "document assembled", map[string]any{"size_bytes": len(result.Bytes)})
	return nil
}
