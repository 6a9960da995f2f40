// Package ptav implements PTAVOrchestrator (spec.md §4.6): the bounded
// Plan-Tool(execute)-Active(observe)-Validate loop, modeled directly on the
// teacher's ReActController.Run iteration structure
// (pkg/agent/controller/react.go), generalized from tool-call/final-answer
// detection to SQL-generation goal checking.
package ptav

import (
	"context"
	"fmt"

	"github.com/reportforge/reportengine/internal/agent"
	"github.com/reportforge/reportengine/internal/agent/planner"
	"github.com/reportforge/reportengine/internal/agent/stepexec"
	"github.com/reportforge/reportengine/internal/agent/validator"
	"github.com/reportforge/reportengine/internal/resourcepool"
)

// patternWindow is K in spec.md §4.6.3 ("inspect the last K plans+observations").
const patternWindow = 3

// Orchestrator runs the bounded PTAV loop or the fixed validate-only repair
// pipeline.
type Orchestrator struct {
	Planner   *planner.Planner
	StepExec  *stepexec.StepExecutor
	Validator *validator.Validator
	MaxIterations int
}

// New creates an Orchestrator.
func New(p *planner.Planner, se *stepexec.StepExecutor, v *validator.Validator, maxIterations int) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = 15
	}
	return &Orchestrator{Planner: p, StepExec: se, Validator: v, MaxIterations: maxIterations}
}

// RunGeneration implements PTAV mode (4.6.1): the bounded Plan→Execute→
// Observe→Validate loop.
func (o *Orchestrator) RunGeneration(ctx context.Context, goal string, ec *agent.ExecutionContext) agent.AgentOutput {
	var history []agent.Observation
	var plans []agent.Plan
	var sqlSnapshots []string

	iterations := 0
	for iteration := 1; iteration <= o.MaxIterations; iteration++ {
		iterations = iteration

		select {
		case <-ctx.Done():
			return o.exhausted(ec, history, "cancelled")
		default:
		}

		plan, err := o.Planner.Plan(ctx, goal, ec.Pool.Snapshot(), history)
		if err != nil {
			return agent.AgentOutput{
				Success: false,
				Content: lastSQL(ec.Pool),
				Metadata: agent.OutputMetadata{
					GenerationMethod: "ptav",
					Iterations:       iteration,
					Reason:           "plan_parse_error",
				},
			}
		}
		plans = append(plans, plan)

		partial := o.StepExec.Execute(ctx, plan, ec, history)
		history = append(history, partial.Observations...)
		sqlSnapshots = append(sqlSnapshots, lastSQL(ec.Pool))

		v := o.Validator.Check(ec.Pool, history)
		if v.GoalAchieved {
			return agent.AgentOutput{
				Success: true,
				Content: lastSQL(ec.Pool),
				Metadata: agent.OutputMetadata{
					GenerationMethod: "ptav",
					Iterations:       iteration,
				},
			}
		}

		if shouldExit(plans, history, sqlSnapshots) {
			break
		}
	}

	out := o.exhausted(ec, history, "iteration_exhausted")
	out.Metadata.Iterations = iterations
	return out
}

func (o *Orchestrator) exhausted(ec *agent.ExecutionContext, history []agent.Observation, reason string) agent.AgentOutput {
	return agent.AgentOutput{
		Success: false,
		Content: lastSQL(ec.Pool),
		Metadata: agent.OutputMetadata{
			GenerationMethod: "ptav",
			Reason:           reason,
		},
	}
}

func lastSQL(pool *resourcepool.Pool) string {
	if v, ok := pool.Get(resourcepool.KeySQLCurrent); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RunValidateOnly implements validate-only mode (4.6.2): a fixed pipeline
// skipping the Planner entirely.
func (o *Orchestrator) RunValidateOnly(ctx context.Context, sql string, ec *agent.ExecutionContext) agent.AgentOutput {
	ec.Pool.Put(resourcepool.KeySQLCurrent, sql, 0)
	schema := schemaSnapshot(ec.Pool)

	var history []agent.Observation

	obs1, _ := ec.Tools.Execute(ctx, "sql.validate", map[string]any{"sql": sql, "schema_snapshot": schema}, ec)
	history = append(history, obs1)

	result := o.Validator.CheckValidateOnly(history)
	if result.GoalAchieved {
		return agent.AgentOutput{Success: true, Content: sql, Metadata: agent.OutputMetadata{GenerationMethod: "validate_only"}}
	}

	issues, _ := obs1.Result["issues"].([]any)
	refineObs, _ := ec.Tools.Execute(ctx, "sql.refine", map[string]any{"sql": sql, "issues": issues, "schema": schema}, ec)
	history = append(history, refineObs)

	refinedSQL := sql
	if refineObs.Success {
		if s, ok := refineObs.Result["sql"].(string); ok {
			refinedSQL = s
		}
	}
	ec.Pool.Put(resourcepool.KeySQLCurrent, refinedSQL, 0)

	obs2, _ := ec.Tools.Execute(ctx, "sql.validate", map[string]any{"sql": refinedSQL, "schema_snapshot": schema}, ec)
	history = append(history, obs2)

	final := o.Validator.CheckValidateOnly(history)
	if final.GoalAchieved {
		return agent.AgentOutput{Success: true, Content: refinedSQL, Metadata: agent.OutputMetadata{GenerationMethod: "validate_only"}}
	}

	return agent.AgentOutput{
		Success: false,
		Content: refinedSQL,
		Metadata: agent.OutputMetadata{
			GenerationMethod: "validate_only",
			Reason:           final.Reason,
			Repairable:       !isUnrepairable(final.Reason),
		},
	}
}

func schemaSnapshot(pool *resourcepool.Pool) map[string]any {
	out := map[string]any{}
	for k, v := range pool.Snapshot() {
		if len(k) > len(resourcepool.KeySchemaPrefix) && k[:len(resourcepool.KeySchemaPrefix)] == resourcepool.KeySchemaPrefix {
			out[k[len(resourcepool.KeySchemaPrefix):]] = v
		}
	}
	return map[string]any{"columns": out}
}

// isUnrepairable reports whether a validate-only failure reason belongs to
// the unrepairable-semantics set named in spec.md §4.7 step 3.
func isUnrepairable(reason string) bool {
	unrepairable := []string{"dialect_mismatch", "lexical_error"}
	for _, u := range unrepairable {
		if reason == u {
			return true
		}
	}
	return false
}

// shouldExit implements the pattern detector (spec.md §4.6.3): inspect the
// last K plans+observations and exit early on thrash, repeated errors, or
// no net change to sql:current.
func shouldExit(plans []agent.Plan, history []agent.Observation, sqlSnapshots []string) bool {
	if len(plans) < patternWindow {
		return false
	}
	recentPlans := plans[len(plans)-patternWindow:]

	// (a) same tool invoked three times with identical input
	if allSameToolAndInput(recentPlans) {
		return true
	}

	// (b) three consecutive iterations report the same error message
	if sameRepeatedError(history, patternWindow) {
		return true
	}

	// (c) no net change to sql:current across the last three iterations
	if noNetChange(sqlSnapshots, patternWindow) {
		return true
	}

	return false
}

func noNetChange(snapshots []string, window int) bool {
	if len(snapshots) < window {
		return false
	}
	recent := snapshots[len(snapshots)-window:]
	first := recent[0]
	if first == "" {
		return false
	}
	for _, s := range recent[1:] {
		if s != first {
			return false
		}
	}
	return true
}

func allSameToolAndInput(plans []agent.Plan) bool {
	var firstTool string
	var firstInput string
	for i, p := range plans {
		if len(p.Steps) != 1 {
			return false
		}
		step := p.Steps[0]
		encoded := fmt.Sprintf("%v", step.Input)
		if i == 0 {
			firstTool, firstInput = step.Tool, encoded
			continue
		}
		if step.Tool != firstTool || encoded != firstInput {
			return false
		}
	}
	return true
}

func sameRepeatedError(history []agent.Observation, window int) bool {
	var failed []agent.Observation
	for i := len(history) - 1; i >= 0 && len(failed) < window; i-- {
		if !history[i].Success {
			failed = append(failed, history[i])
		} else {
			break // run of consecutive failures must be unbroken
		}
	}
	if len(failed) < window {
		return false
	}
	first := failed[0].Error
	for _, f := range failed[1:] {
		if f.Error != first {
			return false
		}
	}
	return true
}
