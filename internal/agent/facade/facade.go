// Package facade implements AgentFacade (spec.md §4.7): the per-placeholder
// entry point deciding validate-only vs. full PTAV generation, with
// fallback on unrepairable validate-only failure.
package facade

import (
	"context"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/ptav"
)

// unrepairableReasons mirrors PTAV's isUnrepairable set; validate-only
// failures for any other reason fall through to full PTAV generation.
var unrepairableReasons = map[string]bool{
	"dialect_mismatch": true,
	"lexical_error":    true,
}

// Facade is the per-placeholder agent entry point.
type Facade struct {
	Orchestrator *ptav.Orchestrator
}

// New creates a Facade.
func New(o *ptav.Orchestrator) *Facade {
	return &Facade{Orchestrator: o}
}

// ExecuteTaskValidation implements spec.md §4.7's four-step algorithm.
func (f *Facade) ExecuteTaskValidation(ctx context.Context, in agent.Input, goal string, ec *agent.ExecutionContext) agent.AgentOutput {
	currentSQL := in.ExtractCurrentSQL()

	if currentSQL != "" {
		out := f.Orchestrator.RunValidateOnly(ctx, currentSQL, ec)
		if out.Success {
			return out
		}
		if unrepairableReasons[out.Metadata.Reason] {
			// repairable=false semantics mean no PTAV fallback is attempted
			return out
		}
		// fall through to PTAV generation, recording why
		fallbackReason := out.Metadata.Reason
		genOut := f.Orchestrator.RunGeneration(ctx, goal, ec)
		genOut.Metadata.GenerationMethod = "ptav_fallback"
		genOut.Metadata.FallbackReason = fallbackReason
		return genOut
	}

	return f.Orchestrator.RunGeneration(ctx, goal, ec)
}
