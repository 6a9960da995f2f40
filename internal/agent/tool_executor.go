package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/reportforge/reportengine/internal/resourcepool"
	"github.com/reportforge/reportengine/internal/tools"
)

// RegistryToolExecutor adapts a tools.Registry to the agent package's
// ToolExecutor interface, and applies the ResourcePool caching behavior
// spec.md §4.1 assigns to schema.get_columns ("Caches into ResourcePool
// under schema:{table}") and the sql:current / observations:history keys
// StepExecutor relies on (spec.md §4.2).
type RegistryToolExecutor struct {
	Registry *tools.Registry
}

// NewRegistryToolExecutor wraps registry for use as an agent.ToolExecutor.
func NewRegistryToolExecutor(registry *tools.Registry) *RegistryToolExecutor {
	return &RegistryToolExecutor{Registry: registry}
}

// Execute runs the named tool and returns the resulting Observation,
// writing cache side effects into ec.Pool as appropriate for the tool.
func (e *RegistryToolExecutor) Execute(ctx context.Context, toolName string, input map[string]any, ec *ExecutionContext) (Observation, error) {
	result, elapsed, err := e.Registry.Execute(ctx, toolName, input)
	obs := Observation{
		Tool:    toolName,
		Elapsed: elapsed,
	}
	if err != nil {
		obs.Success = false
		obs.Error = err.Error()
		return obs, nil // tool errors are captured as failed Observations, not pipeline errors
	}
	obs.Success = true
	obs.Result = result

	e.cacheSideEffects(toolName, input, result, ec)
	return obs, nil
}

func (e *RegistryToolExecutor) cacheSideEffects(toolName string, input, result map[string]any, ec *ExecutionContext) {
	if ec == nil || ec.Pool == nil {
		return
	}
	switch toolName {
	case "schema.get_columns":
		if cols, ok := result["columns"].(map[string]any); ok {
			for table, data := range cols {
				ec.Pool.Put(fmt.Sprintf("%s%s", resourcepool.KeySchemaPrefix, table), data, time.Hour)
			}
		}
	case "time.window":
		ec.Pool.Put(resourcepool.KeyTimeWindow, result, 0)
	case "sql.validate":
		if valid, ok := result["valid"].(bool); ok && valid {
			if sql, ok := input["sql"].(string); ok {
				ec.Pool.Put(resourcepool.KeySQLCurrent, sql, 0)
			}
		}
	case "sql.refine":
		if sql, ok := result["sql"].(string); ok {
			ec.Pool.Put(resourcepool.KeySQLCurrent, sql, 0)
		}
	}
}
