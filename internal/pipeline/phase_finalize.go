package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportengine/internal/models"
)

const notifyTimeout = 5 * time.Second
const presignTTL = 24 * time.Hour

// phaseFinalize implements Phase 8 (spec.md §4.8, 95-100%): persists the
// artifact on the success path, transitions the execution to its terminal
// status, emits the terminal event, and fires a best-effort notification.
// Always runs, regardless of which earlier phase produced out.
func (p *Pipeline) phaseFinalize(ctx context.Context, r *run, out outcome) {
	status := out.status
	reportURL := ""

	if status == models.StatusCompleted {
		if err := p.Artifacts.Create(ctx, r.artifact); err != nil {
			p.Log.Error("pipeline: persist artifact failed", "execution_id", r.execution.ID, "error", err)
			status = models.StatusFailed
			r.execution.Error = fmt.Sprintf("artifact_persist_failed: %v", err)
		} else if url, err := p.Storage.PresignedURL(ctx, r.artifact.ObjectKey, presignTTL); err == nil {
			reportURL = url
		} else {
			p.Log.Warn("pipeline: presign report url failed", "execution_id", r.execution.ID, "error", err)
		}
	}

	r.execution.Status = status
	r.execution.Progress = 100
	now := time.Now()
	r.execution.FinishedAt = &now
	collectResult(r)

	if err := p.Executions.UpdateStatus(ctx, r.execution.ID, status, 100, r.execution.Result, r.execution.Error); err != nil {
		p.Log.Error("pipeline: persist final status failed", "execution_id", r.execution.ID, "error", err)
	}
	p.emit(ctx, r, 100, fmt.Sprintf("execution %s", status), map[string]any{"reason": out.reason})

	if p.Notifier != nil {
		p.Notifier.NotifyFinalize(ctx, r.execution, r.task.Name, reportURL, notifyTimeout)
	}
}

// collectResult fills r.execution.Result's audit fields from the
// accumulated per-placeholder analysis, per spec.md §7's "User-visible
// failure behavior".
func collectResult(r *run) {
	fallbackReasons := make(map[string]string)
	lastSQLAttempts := make(map[string]string)
	for _, ph := range r.placeholders {
		res, ok := r.analysis[ph.ID]
		if !ok {
			continue
		}
		if res.placeholder.AgentConfig.FallbackReason != "" {
			fallbackReasons[ph.Name] = res.placeholder.AgentConfig.FallbackReason
		}
		if !res.success {
			lastSQLAttempts[ph.Name] = res.placeholder.GeneratedSQL
		}
	}
	if len(fallbackReasons) > 0 {
		r.execution.Result.FallbackReasons = fallbackReasons
	}
	if len(lastSQLAttempts) > 0 {
		r.execution.Result.LastSQLAttempts = lastSQLAttempts
	}
}
