package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/facade"
	"github.com/reportforge/reportengine/internal/agent/planner"
	"github.com/reportforge/reportengine/internal/agent/ptav"
	"github.com/reportforge/reportengine/internal/agent/stepexec"
	"github.com/reportforge/reportengine/internal/agent/validator"
	"github.com/reportforge/reportengine/internal/config"
	"github.com/reportforge/reportengine/internal/datasource"
	"github.com/reportforge/reportengine/internal/document"
	"github.com/reportforge/reportengine/internal/etl"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/storage"
	"github.com/reportforge/reportengine/internal/tools"
)

// --- in-memory collaborator fakes, one per Pipeline dependency interface ---

type fakeTasks struct {
	mu    sync.Mutex
	tasks map[string]models.Task
}

func newFakeTasks(t models.Task) *fakeTasks {
	return &fakeTasks{tasks: map[string]models.Task{t.ID: t}}
}

func (f *fakeTasks) Get(_ context.Context, id string) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return models.Task{}, fmt.Errorf("fakeTasks: no task %s", id)
	}
	return t, nil
}

type fakePlaceholders struct {
	mu    sync.Mutex
	byID  map[string]models.Placeholder
	order []string
}

func newFakePlaceholders(phs ...models.Placeholder) *fakePlaceholders {
	f := &fakePlaceholders{byID: make(map[string]models.Placeholder)}
	for _, ph := range phs {
		f.byID[ph.ID] = ph
		f.order = append(f.order, ph.ID)
	}
	return f
}

func (f *fakePlaceholders) ByTask(_ context.Context, _ string) ([]models.Placeholder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Placeholder, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *fakePlaceholders) Upsert(_ context.Context, _ string, p models.Placeholder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[p.ID] = p
	return nil
}

type fakeExecutions struct {
	mu         sync.Mutex
	byID       map[string]models.TaskExecution
	byTrigger  map[string]string // task+trigger -> execution id
}

func newFakeExecutions() *fakeExecutions {
	return &fakeExecutions{byID: make(map[string]models.TaskExecution), byTrigger: make(map[string]string)}
}

func (f *fakeExecutions) Create(_ context.Context, e models.TaskExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[e.ID] = e
	f.byTrigger[e.TaskID+"/"+e.TriggerID] = e.ID
	return nil
}

func (f *fakeExecutions) ByTrigger(_ context.Context, taskID, triggerID string) (models.TaskExecution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byTrigger[taskID+"/"+triggerID]
	if !ok {
		return models.TaskExecution{}, false, nil
	}
	return f.byID[id], true, nil
}

func (f *fakeExecutions) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, progress float64, result models.ResultBlob, execErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.byID[id]
	e.Status = status
	e.Progress = progress
	e.Result = result
	e.Error = execErr
	f.byID[id] = e
	return nil
}

func (f *fakeExecutions) get(id string) models.TaskExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeArtifacts struct {
	mu    sync.Mutex
	byExec map[string]models.ReportArtifact
	failAlways bool
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{byExec: make(map[string]models.ReportArtifact)}
}

func (f *fakeArtifacts) Create(_ context.Context, a models.ReportArtifact) error {
	if f.failAlways {
		return fmt.Errorf("fakeArtifacts: forced failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byExec[a.ExecutionID] = a
	return nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []models.ExecutionEvent
}

func newFakeRecorder() *fakeRecorder { return &fakeRecorder{} }

func (f *fakeRecorder) Append(_ context.Context, ev models.ExecutionEvent, _ models.ExecutionStatus) (models.ExecutionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev.Seq = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeNotifier) NotifyFinalize(_ context.Context, _ models.TaskExecution, _, _ string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

// noopLLM satisfies agent.LLMClient but is never invoked on the
// validate-only fast path the tests exercise (RunValidateOnly never calls
// Planner.Plan), so a hard failure on Complete catches an unexpected
// PTAV-generation fallback.
type noopLLM struct{}

func (noopLLM) Complete(context.Context, []agent.ConversationMessage, agent.CompleteOptions) (agent.CompleteResult, error) {
	return agent.CompleteResult{}, fmt.Errorf("noopLLM: unexpected Complete call, validate-only path should not reach the planner")
}
func (noopLLM) Close() error { return nil }

// testHarness wires a real Pipeline with fake persistence collaborators and
// real (but in-memory/stub) domain collaborators, the way cmd/reportengine
// assembles them at startup, minus network I/O.
type testHarness struct {
	pipeline   *Pipeline
	tasks      *fakeTasks
	placeholders *fakePlaceholders
	executions *fakeExecutions
	artifacts  *fakeArtifacts
	recorder   *fakeRecorder
	notifier   *fakeNotifier
}

func newTestHarness(t *testing.T, task models.Task, phs []models.Placeholder, cfg config.PipelineConfig) *testHarness {
	t.Helper()

	conn := datasource.NewStubConnector()
	conn.Tables = []string{"orders"}
	conn.Columns = map[string][]datasource.ColumnInfo{
		"orders": {{Column: "id", Type: "bigint"}, {Column: "total", Type: "numeric"}},
	}
	conn.Default = datasource.QueryResult{
		Rows:    []map[string]any{{"total": 42.0}},
		Columns: []datasource.Column{{Name: "total", Type: "numeric"}},
	}

	dataSources := datasource.NewRegistry()
	dataSources.Register(task.DataSourceID, conn)

	toolRegistry := tools.NewBuiltinRegistry(dataSources, 5*time.Second)

	pl := planner.New(noopLLM{}, toolRegistry)
	se := stepexec.New(agent.NewRegistryToolExecutor(toolRegistry), nil)
	v := validator.New()
	orch := ptav.New(pl, se, v, cfg.AgentMaxIterations)
	fac := facade.New(orch)

	etlRunner := etl.New(dataSources, 5*time.Second)
	assembler := &document.StubAssembler{}

	local := storage.NewLocalBackend(t.TempDir(), "http://localhost/files")
	store := storage.New(nil, local, slog.Default())

	ft := newFakeTasks(task)
	fp := newFakePlaceholders(phs...)
	fe := newFakeExecutions()
	fa := newFakeArtifacts()
	fr := newFakeRecorder()
	fn := &fakeNotifier{}

	p := New(ft, fp, fe, fa, fr, fn, fac, etlRunner, assembler, store, dataSources, toolRegistry, agent.LLMClient(noopLLM{}), cfg,
		"reports/{tenant}/{slug}/{date}-{name}.docx", slog.Default())

	return &testHarness{pipeline: p, tasks: ft, placeholders: fp, executions: fe, artifacts: fa, recorder: fr, notifier: fn}
}

func baseTask() models.Task {
	return models.Task{
		ID: uuid.New().String(), OwnerID: "acme-corp", Name: "Monthly Ops Report",
		TemplateID: "tmpl-1", DataSourceID: "warehouse", IsActive: true,
	}
}

func validatedPlaceholder(name, sql string) models.Placeholder {
	return models.Placeholder{
		ID: uuid.New().String(), Name: name, Description: "total for " + name,
		SemanticType: models.SemanticScalarStat, GeneratedSQL: sql,
	}
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	task := baseTask()
	ph := validatedPlaceholder("total_orders", "SELECT total FROM orders")
	h := newTestHarness(t, task, []models.Placeholder{ph}, config.Defaults().Pipeline)

	exec, err := h.pipeline.TriggerManual(context.Background(), task, "trigger-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.Equal(t, float64(100), exec.Progress)
	assert.Empty(t, exec.Error)
	assert.NotNil(t, exec.FinishedAt)

	artifact, ok := h.artifacts.byExec[exec.ID]
	require.True(t, ok, "expected an artifact to be persisted on the success path")
	assert.Contains(t, artifact.ObjectKey, "reports/acme-corp/monthly-ops-report/")
	assert.Equal(t, "fallback", artifact.Backend)
	assert.NotZero(t, artifact.Size)

	assert.Equal(t, 1, h.notifier.calls)
	assert.Greater(t, h.recorder.count(), 0)
}

func TestPipeline_Run_ToleranceExceeded(t *testing.T) {
	task := baseTask()
	// references a table the stub connector never registered, so
	// sql.validate reports an unresolved identifier and the one-placeholder
	// analysis never reaches success.
	ph := validatedPlaceholder("mystery_metric", "SELECT count FROM ghost_table")
	cfg := config.Defaults().Pipeline
	cfg.MaxFailedPlaceholdersForDoc = 0
	h := newTestHarness(t, task, []models.Placeholder{ph}, cfg)

	exec, err := h.pipeline.TriggerManual(context.Background(), task, "trigger-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, exec.Status)
	assert.Contains(t, exec.Error, "tolerance_exceeded")
	assert.Contains(t, exec.Result.FailedPlaceholders, "mystery_metric")

	_, ok := h.artifacts.byExec[exec.ID]
	assert.False(t, ok, "no artifact should be persisted once the tolerance gate fails the run")
	assert.Equal(t, 1, h.notifier.calls, "Finalize always fires the best-effort notification")
}

func TestPipeline_Run_NoPlaceholders(t *testing.T) {
	task := baseTask()
	h := newTestHarness(t, task, nil, config.Defaults().Pipeline)

	exec, err := h.pipeline.TriggerManual(context.Background(), task, "trigger-1")
	require.NoError(t, err)

	// Phase 5's "zero successes" branch only fires with at least one
	// placeholder attempted; a template with none passes the tolerance gate
	// with an empty render map and runs through assembly and upload.
	assert.Equal(t, models.StatusCompleted, exec.Status)
	assert.Empty(t, exec.Error)
}

func TestPipeline_Run_IdempotentOnTrigger(t *testing.T) {
	task := baseTask()
	ph := validatedPlaceholder("total_orders", "SELECT total FROM orders")
	h := newTestHarness(t, task, []models.Placeholder{ph}, config.Defaults().Pipeline)

	first, err := h.pipeline.TriggerManual(context.Background(), task, "dup-trigger")
	require.NoError(t, err)

	second, err := h.pipeline.TriggerManual(context.Background(), task, "dup-trigger")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a repeated trigger id must return the existing execution, not start a second run")
	assert.Equal(t, 1, h.notifier.calls, "only the first run should have executed Finalize")
}

func TestPipeline_Cancel_UnknownExecutionReturnsFalse(t *testing.T) {
	task := baseTask()
	h := newTestHarness(t, task, nil, config.Defaults().Pipeline)

	assert.False(t, h.pipeline.Cancel("does-not-exist"))
}

func TestPipeline_Dispatch_BucketsTriggerByMinute(t *testing.T) {
	task := baseTask()
	ph := validatedPlaceholder("total_orders", "SELECT total FROM orders")
	h := newTestHarness(t, task, []models.Placeholder{ph}, config.Defaults().Pipeline)

	err := h.pipeline.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, h.notifier.calls)

	// A second Dispatch call within the same minute reuses the same
	// time-bucketed trigger id and must not start a second execution.
	err = h.pipeline.Dispatch(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, 1, h.notifier.calls)
}

// --- unit tests for free functions, no collaborator wiring required ---

func TestCancelOrTimeout(t *testing.T) {
	t.Run("deadline exceeded maps to failed", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		time.Sleep(time.Millisecond)
		assert.Equal(t, models.StatusFailed, cancelOrTimeout(ctx))
	})

	t.Run("explicit cancel maps to cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Equal(t, models.StatusCancelled, cancelOrTimeout(ctx))
	})
}

func TestRenderValue(t *testing.T) {
	assert.Equal(t, 42.0, renderValue(etl.Value{Kind: etl.KindScalar, Scalar: 42.0}))
	assert.Equal(t, map[string]any{"a": 1}, renderValue(etl.Value{Kind: etl.KindRecord, Record: map[string]any{"a": 1}}))
	assert.Equal(t, []map[string]any{{"a": 1}}, renderValue(etl.Value{Kind: etl.KindTable, Table: []map[string]any{{"a": 1}}}))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Monthly Ops Report":  "monthly-ops-report",
		"Q1_2026 Summary!!":   "q1-2026-summary",
		"  leading/trailing ": "leading-trailing",
	}
	for in, want := range cases {
		assert.Equal(t, want, slugify(in), "slugify(%q)", in)
	}
}

func TestCollectResult(t *testing.T) {
	ph1 := validatedPlaceholder("a", "SELECT 1")
	ph2 := validatedPlaceholder("b", "SELECT 2")
	r := &run{
		placeholders: []models.Placeholder{ph1, ph2},
		analysis: map[string]analysisResult{
			ph1.ID: {placeholder: func() models.Placeholder {
				p := ph1
				p.AgentConfig.FallbackReason = "validate_only_unrepairable"
				return p
			}(), success: true},
			ph2.ID: {placeholder: ph2, success: false},
		},
	}

	collectResult(r)

	assert.Equal(t, "validate_only_unrepairable", r.execution.Result.FallbackReasons["a"])
	assert.Equal(t, "SELECT 2", r.execution.Result.LastSQLAttempts["b"])
	_, hasA := r.execution.Result.LastSQLAttempts["a"]
	assert.False(t, hasA, "a successful placeholder must not appear in last_sql_attempts")
}
