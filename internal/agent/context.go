package agent

import (
	"context"

	"github.com/reportforge/reportengine/internal/config"
	"github.com/reportforge/reportengine/internal/models"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// ToolExecutor is the dispatch boundary AgentFacade/PTAVOrchestrator use to
// invoke tools by name, avoiding an import cycle between agent and tools.
type ToolExecutor interface {
	Execute(ctx context.Context, toolName string, input map[string]any, ec *ExecutionContext) (Observation, error)
}

// EventPublisher is the narrow slice of ProgressRecorder the agent loop
// needs, kept as an interface here (rather than importing internal/events
// directly) to avoid an import cycle — mirrors the teacher's
// pkg/agent/context.go EventPublisher interface.
type EventPublisher interface {
	Emit(ctx context.Context, executionID string, stage string, percent float64, message string, details map[string]any) error
}

// ExecutionContext bundles everything a placeholder analysis needs: task and
// execution identity, the placeholder under analysis, the ResourcePool
// scoped to this execution, and the collaborator handles (LLMClient,
// ToolExecutor, EventPublisher). Modeled on the teacher's
// pkg/agent/context.go ExecutionContext.
type ExecutionContext struct {
	TaskID        string
	ExecutionID   string
	DataSourceRef models.DataSourceRef
	Placeholder   *models.Placeholder

	Pool      *resourcepool.Pool
	LLM       LLMClient
	Tools     ToolExecutor
	Publisher EventPublisher

	Pipeline config.PipelineConfig
}
