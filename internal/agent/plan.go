package agent

import "time"

// Step is one planned tool invocation.
type Step struct {
	Tool  string         `json:"tool"`
	Input map[string]any `json:"input"`
}

// Plan is the agent's next step, as returned by Planner.Plan.
type Plan struct {
	Reasoning string `json:"reasoning"`
	Steps     []Step `json:"steps"`
}

// Observation is a tool execution outcome, appended to the iteration
// history and referenced by later steps via "$obs.<id>.<path>" input
// references.
type Observation struct {
	ID      string
	Tool    string
	Success bool
	Result  map[string]any
	Error   string
	Elapsed time.Duration
}

// PartialResult is StepExecutor's return value: the observations produced
// before either completing the plan or aborting on a step failure.
type PartialResult struct {
	Observations []Observation
	Aborted      bool
}

// ValidationResult is Validator's verdict.
type ValidationResult struct {
	GoalAchieved bool
	Reason       string
}

// AgentOutput is AgentFacade's and PTAVOrchestrator's return value.
type AgentOutput struct {
	Success bool
	Content string // resolved SQL
	Metadata OutputMetadata
}

// OutputMetadata carries the forward-compatible detail persisted into
// Placeholder.AgentConfig.
type OutputMetadata struct {
	GenerationMethod string // "validate_only" | "ptav" | "ptav_fallback"
	Iterations       int
	FallbackReason   string
	Reason           string // e.g. "iteration_exhausted"
	Repairable       bool
}
