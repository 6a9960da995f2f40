// Package pipeline implements PlaceholderPipeline (spec.md §4.8): the
// eight-phase execution that turns one Task trigger into a delivered
// report, coordinating AgentFacade, ETLRunner, DocumentAssembler, and
// HybridStorage behind a single progress-reporting, cancellable run.
// Structured on the teacher's pkg/queue.WorkerPool session-lifecycle
// idiom (cancel registry, lock-scoped dispatch) generalized from polling
// ent sessions to a directly-invoked phase sequence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/facade"
	"github.com/reportforge/reportengine/internal/config"
	"github.com/reportforge/reportengine/internal/datasource"
	"github.com/reportforge/reportengine/internal/document"
	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/storage"
	"github.com/reportforge/reportengine/internal/tools"
)

// TaskRepository is the slice of internal/database.TaskRepository the
// pipeline needs.
type TaskRepository interface {
	Get(ctx context.Context, id string) (models.Task, error)
}

// PlaceholderRepository is the slice of internal/database.PlaceholderRepository
// the pipeline needs.
type PlaceholderRepository interface {
	ByTask(ctx context.Context, taskID string) ([]models.Placeholder, error)
	Upsert(ctx context.Context, taskID string, p models.Placeholder) error
}

// ExecutionRepository is the slice of internal/database.ExecutionRepository
// the pipeline needs.
type ExecutionRepository interface {
	Create(ctx context.Context, e models.TaskExecution) error
	ByTrigger(ctx context.Context, taskID, triggerID string) (models.TaskExecution, bool, error)
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, progress float64, result models.ResultBlob, execErr string) error
}

// ArtifactRepository is the slice of internal/database.ArtifactRepository
// the pipeline needs.
type ArtifactRepository interface {
	Create(ctx context.Context, a models.ReportArtifact) error
}

// ProgressRecorder is the slice of internal/events.Recorder the pipeline
// needs, kept as an interface here to avoid internal/pipeline importing
// internal/events directly.
type ProgressRecorder interface {
	Append(ctx context.Context, ev models.ExecutionEvent, status models.ExecutionStatus) (models.ExecutionEvent, error)
}

// Notifier is the best-effort Finalize-phase notification boundary,
// satisfied by internal/notify.Client.
type Notifier interface {
	NotifyFinalize(ctx context.Context, exec models.TaskExecution, taskName, reportURL string, timeout time.Duration)
}

// Pipeline wires every collaborator PlaceholderPipeline's eight phases
// consume.
type Pipeline struct {
	Tasks        TaskRepository
	Placeholders PlaceholderRepository
	Executions   ExecutionRepository
	Artifacts    ArtifactRepository
	Recorder     ProgressRecorder
	Notifier     Notifier // nil disables Finalize-phase notification

	Facade      *facade.Facade
	ETL         *etl.Runner
	Assembler   document.Assembler
	Storage     *storage.HybridStorage
	DataSources *datasource.Registry
	Tools       *tools.Registry
	LLM         agent.LLMClient

	Config            config.PipelineConfig
	ObjectKeyTemplate string // config.StorageConfig.ObjectKeyTemplate
	Log               *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a Pipeline from its collaborators.
func New(
	tasks TaskRepository,
	placeholders PlaceholderRepository,
	executions ExecutionRepository,
	artifacts ArtifactRepository,
	recorder ProgressRecorder,
	notifier Notifier,
	f *facade.Facade,
	etlRunner *etl.Runner,
	assembler document.Assembler,
	store *storage.HybridStorage,
	dataSources *datasource.Registry,
	toolRegistry *tools.Registry,
	llm agent.LLMClient,
	cfg config.PipelineConfig,
	objectKeyTemplate string,
	log *slog.Logger,
) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		Tasks: tasks, Placeholders: placeholders, Executions: executions, Artifacts: artifacts,
		Recorder: recorder, Notifier: notifier,
		Facade: f, ETL: etlRunner, Assembler: assembler, Storage: store,
		DataSources: dataSources, Tools: toolRegistry, LLM: llm,
		Config: cfg, ObjectKeyTemplate: objectKeyTemplate, Log: log.With("component", "pipeline"),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Dispatch implements scheduler.Dispatcher: it runs task's trigger with a
// time-bucketed trigger id, so a cron tick that fires twice inside the
// same minute (e.g. scheduler restart racing its own timer) is idempotent.
func (p *Pipeline) Dispatch(ctx context.Context, task models.Task) error {
	triggerID := "cron-" + time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339)
	_, err := p.Run(ctx, task, triggerID)
	return err
}

// TriggerManual runs task's trigger under a caller-supplied idempotency
// key, bypassing cron.
func (p *Pipeline) TriggerManual(ctx context.Context, task models.Task, triggerID string) (models.TaskExecution, error) {
	return p.Run(ctx, task, triggerID)
}

// Cancel asserts the cancellation signal for a running execution. Returns
// false if no such execution is currently running on this process.
func (p *Pipeline) Cancel(executionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[executionID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Run advances a single TaskExecution through every phase in spec.md §4.8's
// table, in order, and returns the final execution record. Idempotent on
// (task.ID, triggerID): a repeated call returns the existing execution
// rather than starting a second run.
func (p *Pipeline) Run(ctx context.Context, task models.Task, triggerID string) (models.TaskExecution, error) {
	if existing, ok, err := p.Executions.ByTrigger(ctx, task.ID, triggerID); err != nil {
		return models.TaskExecution{}, fmt.Errorf("pipeline: idempotency lookup: %w", err)
	} else if ok {
		p.Log.Info("pipeline: trigger already has an execution, returning existing", "task_id", task.ID, "trigger_id", triggerID, "execution_id", existing.ID)
		return existing, nil
	}

	r := &run{
		task:      task,
		triggerID: triggerID,
		pipeline:  p,
	}

	execID := uuid.New().String()
	now := time.Now()
	r.execution = models.TaskExecution{
		ID:        execID,
		TaskID:    task.ID,
		TriggerID: triggerID,
		Status:    models.StatusPending,
		StartedAt: now,
	}
	if err := p.Executions.Create(ctx, r.execution); err != nil {
		return models.TaskExecution{}, fmt.Errorf("pipeline: create execution: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Config.WallClockBudget())
	p.mu.Lock()
	p.cancels[execID] = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.cancels, execID)
		p.mu.Unlock()
	}()

	p.runPhases(runCtx, r)
	return r.execution, nil
}

// phaseFunc is one named step of the phase sequence; a non-nil outcome
// stops the sequence (fatal failure, tolerance-gate skip, or cancellation).
type phaseFunc struct {
	name string
	run  func(ctx context.Context, r *run) *outcome
}

// outcome short-circuits the phase sequence toward Finalize with a final
// status/error, used by fatal failures and the tolerance gate (§4.8 phase
// 5) alike.
type outcome struct {
	status models.ExecutionStatus
	reason string
}

func (p *Pipeline) runPhases(ctx context.Context, r *run) {
	phases := []phaseFunc{
		{"init", p.phaseInit},
		{"schema_context", p.phaseSchemaContext},
		{"placeholder_analysis", p.phasePlaceholderAnalysis},
		{"etl", p.phaseETL},
		{"tolerance_check", p.phaseToleranceCheck},
		{"document_assembly", p.phaseDocumentAssembly},
		{"storage_upload", p.phaseStorageUpload},
	}

	var final *outcome
	for _, phase := range phases {
		if ctx.Err() != nil {
			final = &outcome{status: cancelOrTimeout(ctx), reason: "context ended before " + phase.name}
			break
		}
		if out := phase.run(ctx, r); out != nil {
			final = out
			break
		}
	}
	if final == nil {
		final = &outcome{status: models.StatusCompleted}
	}

	p.phaseFinalize(context.WithoutCancel(ctx), r, *final)
}

// cancelOrTimeout distinguishes an externally-asserted cancellation from a
// wall-clock budget breach, both of which surface as ctx.Err() but demand
// different terminal statuses per spec.md §5/§7.
func cancelOrTimeout(ctx context.Context) models.ExecutionStatus {
	if ctx.Err() == context.DeadlineExceeded {
		return models.StatusFailed
	}
	return models.StatusCancelled
}

// emit appends a progress event and logs failures without aborting the
// pipeline, since ProgressRecorder.emit is defined as non-blocking/
// best-effort (spec.md §5).
func (p *Pipeline) emit(ctx context.Context, r *run, percent float64, message string, details map[string]any) {
	ev := models.ExecutionEvent{
		ExecutionID: r.execution.ID,
		Stage:       r.execution.Status.String(),
		Percent:     percent,
		Message:     message,
		Details:     details,
	}
	if _, err := p.Recorder.Append(ctx, ev, r.execution.Status); err != nil {
		p.Log.Warn("pipeline: emit progress event failed", "execution_id", r.execution.ID, "error", err)
	}
}

// setStatus transitions r.execution's in-memory and persisted status, then
// emits a progress event for the transition.
func (p *Pipeline) setStatus(ctx context.Context, r *run, status models.ExecutionStatus, percent float64, message string) {
	r.execution.Status = status
	r.execution.Progress = percent
	if err := p.Executions.UpdateStatus(ctx, r.execution.ID, status, percent, r.execution.Result, r.execution.Error); err != nil {
		p.Log.Error("pipeline: persist status failed", "execution_id", r.execution.ID, "error", err)
	}
	p.emit(ctx, r, percent, message, nil)
}

// eventPublisher adapts Pipeline's ProgressRecorder to agent.EventPublisher,
// the narrow interface PTAV's StepExecutor uses to write per-step summary
// lines (spec.md §4.4) without internal/agent importing internal/events.
type eventPublisher struct {
	pipeline *Pipeline
	status   models.ExecutionStatus
}

func (e eventPublisher) Emit(ctx context.Context, executionID string, stage string, percent float64, message string, details map[string]any) error {
	_, err := e.pipeline.Recorder.Append(ctx, models.ExecutionEvent{
		ExecutionID: executionID,
		Stage:       stage,
		Percent:     percent,
		Message:     message,
		Details:     details,
	}, e.status)
	return err
}
