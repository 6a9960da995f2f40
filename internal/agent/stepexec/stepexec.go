// Package stepexec implements StepExecutor (spec.md §4.4): given a Plan,
// invokes the referenced tools via the ToolExecutor, resolving
// "$obs.<id>.<path>" input references against the observation history.
package stepexec

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/reportforge/reportengine/internal/agent"
)

// StepExecutor runs a Plan's steps in order, aborting the remaining steps
// (but not the pipeline) on the first tool failure.
type StepExecutor struct {
	Tools     agent.ToolExecutor
	Publisher agent.EventPublisher
}

// New creates a StepExecutor.
func New(toolExecutor agent.ToolExecutor, publisher agent.EventPublisher) *StepExecutor {
	return &StepExecutor{Tools: toolExecutor, Publisher: publisher}
}

// Execute runs plan.Steps in order against ec, appending Observations to
// history as it goes and returning a PartialResult.
func (s *StepExecutor) Execute(ctx context.Context, plan agent.Plan, ec *agent.ExecutionContext, history []agent.Observation) agent.PartialResult {
	var produced []agent.Observation

	for i, step := range plan.Steps {
		resolvedInput := resolveReferences(step.Input, history)

		obs, err := s.Tools.Execute(ctx, step.Tool, resolvedInput, ec)
		if err != nil {
			// registry-level lookup failure: fatal to this step, reported not retried
			obs = agent.Observation{Tool: step.Tool, Success: false, Error: err.Error()}
		}
		obs.ID = strconv.Itoa(len(history) + i)
		produced = append(produced, obs)

		if s.Publisher != nil {
			msg := fmt.Sprintf("tool %s: %s", step.Tool, statusWord(obs.Success))
			_ = s.Publisher.Emit(ctx, ec.ExecutionID, "analyzing", 0, msg, nil)
		}

		if !obs.Success {
			return agent.PartialResult{Observations: produced, Aborted: true}
		}
	}

	return agent.PartialResult{Observations: produced, Aborted: false}
}

func statusWord(success bool) string {
	if success {
		return "ok"
	}
	return "failed"
}

// resolveReferences walks step input values, replacing any string of the
// form "$obs.<id>.<path>" with the corresponding field from a prior
// observation's result map.
func resolveReferences(input map[string]any, history []agent.Observation) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = resolveValue(v, history)
	}
	return out
}

func resolveValue(v any, history []agent.Observation) any {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "$obs.") {
			if resolved, ok := lookupReference(val, history); ok {
				return resolved
			}
		}
		return val
	case map[string]any:
		return resolveReferences(val, history)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveValue(item, history)
		}
		return out
	default:
		return v
	}
}

// lookupReference parses "$obs.<id>.<path...>" and resolves it against
// history, following dotted path segments into the observation's result map.
func lookupReference(ref string, history []agent.Observation) (any, bool) {
	parts := strings.Split(strings.TrimPrefix(ref, "$obs."), ".")
	if len(parts) == 0 {
		return nil, false
	}
	id := parts[0]
	path := parts[1:]

	var target *agent.Observation
	for i := range history {
		if history[i].ID == id {
			target = &history[i]
			break
		}
	}
	if target == nil {
		return nil, false
	}

	var cur any = target.Result
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
