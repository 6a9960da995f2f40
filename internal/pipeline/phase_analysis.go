package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// phasePlaceholderAnalysis implements Phase 3 (spec.md §4.8, 15-65%): run
// AgentFacade for every placeholder, up to AGENT_CONCURRENCY in parallel,
// persisting generated_sql/sql_validated/last_test_result even on failure.
// Per-item failures are isolated and never abort the phase.
func (p *Pipeline) phasePlaceholderAnalysis(ctx context.Context, r *run) *outcome {
	p.setStatus(ctx, r, models.StatusAnalyzing, 15, fmt.Sprintf("analyzing %d placeholders", len(r.placeholders)))

	r.analysis = make(map[string]analysisResult, len(r.placeholders))
	if len(r.placeholders) == 0 {
		p.emit(ctx, r, 65, "no placeholders to analyze", nil)
		return nil
	}

	concurrency := p.Config.Concurrency()
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, ph := range r.placeholders {
		ph := ph
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return // no new LLM/DB calls once cancelled, per spec.md §5
			}

			res := p.analyzeOne(ctx, r, ph)

			mu.Lock()
			r.analysis[ph.ID] = res
			mu.Unlock()

			if err := p.Placeholders.Upsert(ctx, r.task.ID, res.placeholder); err != nil {
				p.Log.Error("pipeline: persist placeholder analysis failed", "execution_id", r.execution.ID, "placeholder_id", ph.ID, "error", err)
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, res := range r.analysis {
		if !res.success {
			failed++
		}
	}
	p.emit(ctx, r, 65, fmt.Sprintf("analysis complete: %d failed of %d", failed, len(r.placeholders)), map[string]any{
		"failed": failed, "total": len(r.placeholders),
	})
	return nil
}

// analyzeOne runs AgentFacade for a single placeholder, seeding a fresh
// ResourcePool from r.basePool's schema-snapshot preload so concurrent
// analyses never share sql:current/observations:history state.
func (p *Pipeline) analyzeOne(ctx context.Context, r *run, ph models.Placeholder) analysisResult {
	pool := resourcepool.New()
	for k, v := range r.basePool.Snapshot() {
		pool.Put(k, v, 0)
	}

	ec := &agent.ExecutionContext{
		TaskID:        r.task.ID,
		ExecutionID:   r.execution.ID,
		DataSourceRef: models.DataSourceRef(r.task.DataSourceID),
		Placeholder:   &ph,
		Pool:          pool,
		LLM:           p.LLM,
		Tools:         agent.NewRegistryToolExecutor(p.Tools),
		Publisher:     eventPublisher{pipeline: p, status: models.StatusAnalyzing},
		Pipeline:      p.Config,
	}

	in := agent.Input{
		UserPrompt:  ph.Description,
		Placeholder: ec,
		CurrentSQL:  ph.GeneratedSQL,
	}
	goal := ph.Description

	out := p.Facade.ExecuteTaskValidation(ctx, in, goal, ec)

	updated := ph
	updated.AgentAnalyzed = true
	updated.GeneratedSQL = out.Content
	updated.SQLValidated = out.Success
	updated.AgentConfig = models.AgentConfig{
		GenerationMethod: out.Metadata.GenerationMethod,
		Iterations:       out.Metadata.Iterations,
		FallbackReason:   out.Metadata.FallbackReason,
		LastTestResult: &models.TestResult{
			Success: out.Success,
			Message: out.Metadata.Reason,
		},
	}

	return analysisResult{placeholder: updated, success: out.Success, reason: out.Metadata.Reason}
}
